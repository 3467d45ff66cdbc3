package out

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tempo/internal/modules/outbox/domain"
	outboxout "tempo/internal/modules/outbox/port/out"
)

type SQLiteQueueStore struct {
	db *sql.DB
}

func NewSQLiteQueueStore(dbPath string) (outboxout.QueueStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store := &SQLiteQueueStore{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteQueueStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS outbox (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  local_id TEXT NOT NULL,
  op_type TEXT NOT NULL,
  collection TEXT NOT NULL,
  key TEXT NOT NULL,
  payload BLOB,
  created_at TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create outbox table: %w", err)
	}
	return nil
}

func (s *SQLiteQueueStore) Append(ctx context.Context, item domain.Item) (domain.Item, error) {
	const stmt = `
INSERT INTO outbox (local_id, op_type, collection, key, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?);
`
	res, err := s.db.ExecContext(ctx, stmt,
		item.LocalID,
		string(item.OpType),
		item.Collection,
		item.Key,
		[]byte(item.Payload),
		item.CreatedAt.Format(storedTimeLayout),
	)
	if err != nil {
		return domain.Item{}, fmt.Errorf("append outbox item: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return domain.Item{}, fmt.Errorf("outbox seq: %w", err)
	}
	item.Seq = seq
	return item, nil
}

func (s *SQLiteQueueStore) List(ctx context.Context) ([]domain.Item, error) {
	const query = `
SELECT seq, local_id, op_type, collection, key, payload, created_at
FROM outbox ORDER BY seq ASC;
`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer rows.Close()

	out := []domain.Item{}
	for rows.Next() {
		var item domain.Item
		var opType, createdAt string
		var payload []byte
		if err := rows.Scan(&item.Seq, &item.LocalID, &opType, &item.Collection, &item.Key, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		item.OpType = domain.OpType(opType)
		item.Payload = payload
		item.CreatedAt = parseStoredTime(createdAt)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

func (s *SQLiteQueueStore) Remove(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("remove outbox item %d: %w", seq, err)
	}
	return nil
}

func (s *SQLiteQueueStore) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return count, nil
}

const storedTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func parseStoredTime(raw string) time.Time {
	t, err := time.Parse(storedTimeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
