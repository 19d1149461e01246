package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pdhoward/cypressresortweb/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS challenges (
	id          TEXT PRIMARY KEY,
	email       TEXT    NOT NULL,
	code_hash   BLOB    NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	consumed    INTEGER NOT NULL DEFAULT 0,
	consumed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_challenges_email ON challenges(email);
CREATE INDEX IF NOT EXISTS idx_challenges_expires_at ON challenges(expires_at);

CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	email        TEXT    NOT NULL,
	token_hash   TEXT    NOT NULL UNIQUE,
	challenge_id TEXT    NOT NULL UNIQUE,
	status       TEXT    NOT NULL DEFAULT 'active',
	issued_at    INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL,
	ended_at     INTEGER,
	duration_sec INTEGER,
	last_seen_at INTEGER NOT NULL,
	ip_address   TEXT    NOT NULL DEFAULT '',
	user_agent   TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sessions_email ON sessions(email);
`

// DB wraps a SQLite database holding both challenges and sessions.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite file and applies the schema.
func Open(cfg *config.SQLiteConfig) (*DB, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single writer connection serializes statements; conditional updates stay atomic.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Health checks database connectivity.
func (d *DB) Health(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
