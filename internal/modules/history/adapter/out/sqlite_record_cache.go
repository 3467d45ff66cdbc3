package out

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tempo/internal/modules/history/domain"
	historyout "tempo/internal/modules/history/port/out"
	timerdomain "tempo/internal/modules/timer/domain"
	apperrors "tempo/internal/platform/errors"
)

const storedTimeLayout = time.RFC3339Nano

// SQLiteRecordCache is the durable local projection of finalized
// sessions and goals. Rows under a local id are placeholders the sync
// stream replaces once the remote confirms them.
type SQLiteRecordCache struct {
	db *sql.DB
}

var _ historyout.RecordCache = (*SQLiteRecordCache)(nil)

func NewSQLiteRecordCache(dbPath string) (*SQLiteRecordCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	cache := &SQLiteRecordCache{db: db}
	if err := cache.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c *SQLiteRecordCache) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  local_ref TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  breaks BLOB,
  started_at TEXT NOT NULL,
  ended_at TEXT NOT NULL,
  total_focus_ms INTEGER NOT NULL,
  total_break_ms INTEGER NOT NULL,
  pending INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_records_user ON records (user_id, started_at);
CREATE TABLE IF NOT EXISTS goals (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  local_ref TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  category TEXT NOT NULL DEFAULT '',
  target_week_ms INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  pending INTEGER NOT NULL DEFAULT 0
);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create cache tables: %w", err)
	}
	return nil
}

func (c *SQLiteRecordCache) UpsertRecord(ctx context.Context, rec domain.Record) error {
	breaks, err := json.Marshal(rec.Breaks)
	if err != nil {
		return fmt.Errorf("encode breaks: %w", err)
	}
	const stmt = `
INSERT INTO records (id, user_id, local_ref, title, category, notes, breaks, started_at, ended_at, total_focus_ms, total_break_ms, pending)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  user_id = excluded.user_id,
  local_ref = excluded.local_ref,
  title = excluded.title,
  category = excluded.category,
  notes = excluded.notes,
  breaks = excluded.breaks,
  started_at = excluded.started_at,
  ended_at = excluded.ended_at,
  total_focus_ms = excluded.total_focus_ms,
  total_break_ms = excluded.total_break_ms,
  pending = excluded.pending;
`
	_, err = c.db.ExecContext(ctx, stmt,
		rec.ID, rec.UserID, rec.LocalRef, rec.Title, rec.Category, rec.Notes, breaks,
		rec.StartedAt.UTC().Format(storedTimeLayout), rec.EndedAt.UTC().Format(storedTimeLayout),
		rec.TotalFocusMs, rec.TotalBreakMs, boolToInt(rec.Pending))
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}
	return nil
}

func (c *SQLiteRecordCache) RemoveRecord(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

func (c *SQLiteRecordCache) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	const stmt = `
SELECT id, user_id, local_ref, title, category, notes, breaks, started_at, ended_at, total_focus_ms, total_break_ms, pending
FROM records WHERE id = ?;
`
	row := c.db.QueryRowContext(ctx, stmt, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, fmt.Errorf("%w: record %s", apperrors.ErrNotFound, id)
	}
	return rec, err
}

func (c *SQLiteRecordCache) ListRecords(ctx context.Context, userID string) ([]domain.Record, error) {
	const stmt = `
SELECT id, user_id, local_ref, title, category, notes, breaks, started_at, ended_at, total_focus_ms, total_break_ms, pending
FROM records WHERE user_id = ? ORDER BY started_at DESC;
`
	rows, err := c.db.QueryContext(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ReplaceRecords swaps the whole per-user projection in one
// transaction, used when a reconnect snapshot supersedes the cache.
func (c *SQLiteRecordCache) ReplaceRecords(ctx context.Context, userID string, recs []domain.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE user_id = ?;`, userID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	const stmt = `
INSERT INTO records (id, user_id, local_ref, title, category, notes, breaks, started_at, ended_at, total_focus_ms, total_break_ms, pending)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	for _, rec := range recs {
		breaks, err := json.Marshal(rec.Breaks)
		if err != nil {
			return fmt.Errorf("encode breaks: %w", err)
		}
		_, err = tx.ExecContext(ctx, stmt,
			rec.ID, rec.UserID, rec.LocalRef, rec.Title, rec.Category, rec.Notes, breaks,
			rec.StartedAt.UTC().Format(storedTimeLayout), rec.EndedAt.UTC().Format(storedTimeLayout),
			rec.TotalFocusMs, rec.TotalBreakMs, boolToInt(rec.Pending))
		if err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

func (c *SQLiteRecordCache) UpsertGoal(ctx context.Context, g domain.Goal) error {
	const stmt = `
INSERT INTO goals (id, user_id, local_ref, name, category, target_week_ms, created_at, pending)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  user_id = excluded.user_id,
  local_ref = excluded.local_ref,
  name = excluded.name,
  category = excluded.category,
  target_week_ms = excluded.target_week_ms,
  created_at = excluded.created_at,
  pending = excluded.pending;
`
	_, err := c.db.ExecContext(ctx, stmt,
		g.ID, g.UserID, g.LocalRef, g.Name, g.Category, g.TargetWeekMs,
		g.CreatedAt.UTC().Format(storedTimeLayout), boolToInt(g.Pending))
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}
	return nil
}

func (c *SQLiteRecordCache) RemoveGoal(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("remove goal: %w", err)
	}
	return nil
}

func (c *SQLiteRecordCache) ListGoals(ctx context.Context, userID string) ([]domain.Goal, error) {
	const stmt = `
SELECT id, user_id, local_ref, name, category, target_week_ms, created_at, pending
FROM goals WHERE user_id = ? ORDER BY created_at;
`
	rows, err := c.db.QueryContext(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []domain.Goal
	for rows.Next() {
		var g domain.Goal
		var created string
		var pending int
		if err := rows.Scan(&g.ID, &g.UserID, &g.LocalRef, &g.Name, &g.Category, &g.TargetWeekMs, &created, &pending); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.CreatedAt, err = time.Parse(storedTimeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parse goal time: %w", err)
		}
		g.Pending = pending != 0
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (c *SQLiteRecordCache) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.Record, error) {
	var rec domain.Record
	var breaks []byte
	var started, ended string
	var pending int
	err := row.Scan(&rec.ID, &rec.UserID, &rec.LocalRef, &rec.Title, &rec.Category, &rec.Notes,
		&breaks, &started, &ended, &rec.TotalFocusMs, &rec.TotalBreakMs, &pending)
	if err != nil {
		return domain.Record{}, err
	}
	if len(breaks) > 0 {
		var parsed []timerdomain.Break
		if err := json.Unmarshal(breaks, &parsed); err != nil {
			return domain.Record{}, fmt.Errorf("decode breaks: %w", err)
		}
		rec.Breaks = parsed
	}
	if rec.StartedAt, err = time.Parse(storedTimeLayout, started); err != nil {
		return domain.Record{}, fmt.Errorf("parse record time: %w", err)
	}
	if rec.EndedAt, err = time.Parse(storedTimeLayout, ended); err != nil {
		return domain.Record{}, fmt.Errorf("parse record time: %w", err)
	}
	rec.Pending = pending != 0
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
