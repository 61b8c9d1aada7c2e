package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS task_status (
	task_id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_task_status_batch ON task_status(batch_id);
CREATE INDEX IF NOT EXISTS idx_task_status_expires ON task_status(expires_at);

CREATE TABLE IF NOT EXISTS text_cache (
	task_id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	expires_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS batch_tasks (
	batch_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	position BIGSERIAL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (batch_id, task_id)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func expiry(now time.Time, ttl time.Duration) sql.NullTime {
	if ttl <= 0 {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: now.Add(ttl), Valid: true}
}
