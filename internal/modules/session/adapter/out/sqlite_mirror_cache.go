package out

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"tempo/internal/modules/session/domain"
	apperrors "tempo/internal/platform/errors"
)

// SQLiteMirrorCache holds at most one row: the last mirror state this
// device saw. Cold starts read it before the network is up.
type SQLiteMirrorCache struct {
	db *sql.DB
}

func NewSQLiteMirrorCache(dbPath string) (*SQLiteMirrorCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	cache := &SQLiteMirrorCache{db: db}
	if err := cache.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c *SQLiteMirrorCache) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS mirror (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  body BLOB NOT NULL
);
`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create mirror table: %w", err)
	}
	return nil
}

func (c *SQLiteMirrorCache) Save(ctx context.Context, active domain.ActiveSession) error {
	body, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("encode mirror: %w", err)
	}
	const stmt = `
INSERT INTO mirror (id, body) VALUES (1, ?)
ON CONFLICT (id) DO UPDATE SET body = excluded.body;
`
	if _, err := c.db.ExecContext(ctx, stmt, body); err != nil {
		return fmt.Errorf("cache mirror: %w", err)
	}
	return nil
}

func (c *SQLiteMirrorCache) Load(ctx context.Context) (domain.ActiveSession, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx, `SELECT body FROM mirror WHERE id = 1;`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ActiveSession{}, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.ActiveSession{}, fmt.Errorf("load cached mirror: %w", err)
	}
	var active domain.ActiveSession
	if err := json.Unmarshal(body, &active); err != nil {
		return domain.ActiveSession{}, fmt.Errorf("decode cached mirror: %w", err)
	}
	return active, nil
}

func (c *SQLiteMirrorCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM mirror WHERE id = 1;`); err != nil {
		return fmt.Errorf("clear cached mirror: %w", err)
	}
	return nil
}

func (c *SQLiteMirrorCache) Close() error {
	return c.db.Close()
}
