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

// EnsureSchema creates all tables used by the service.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS feedbacks (
	id TEXT PRIMARY KEY,
	text TEXT NOT NULL,
	predicted TEXT NOT NULL DEFAULT '',
	probabilities JSONB NOT NULL DEFAULT '{}'::jsonb,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	model_version TEXT NOT NULL DEFAULT '',
	corrected TEXT,
	user_id TEXT NOT NULL DEFAULT '',
	saved_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedbacks_saved_at ON feedbacks(saved_at DESC);
CREATE INDEX IF NOT EXISTS idx_feedbacks_corrected ON feedbacks(saved_at) WHERE corrected IS NOT NULL;

CREATE TABLE IF NOT EXISTS datasets (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS retrain_jobs (
	job_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	progress INTEGER NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	result_metrics JSONB,
	model_version TEXT NOT NULL DEFAULT '',
	include_feedbacks BOOLEAN NOT NULL DEFAULT FALSE,
	base_version TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS metrics_history (
	id BIGSERIAL PRIMARY KEY,
	version TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	metrics JSONB NOT NULL,
	evaluation JSONB NOT NULL,
	n_samples INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_metrics_history_created_at ON metrics_history(created_at DESC);

CREATE TABLE IF NOT EXISTS models (
	version TEXT PRIMARY KEY,
	base_version TEXT NOT NULL DEFAULT '',
	metrics JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	artifact_path TEXT NOT NULL DEFAULT ''
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
