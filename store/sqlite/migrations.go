package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order. Never edit an entry after it has
// shipped; append a new one instead.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id    TEXT PRIMARY KEY,
		id         TEXT NOT NULL,
		tier       TEXT NOT NULL,
		balance    INTEGER NOT NULL,
		ceiling    INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		amount        INTEGER NOT NULL,
		state         TEXT NOT NULL,
		expires_at    TIMESTAMP NOT NULL,
		terminated_at TIMESTAMP,
		created_at    TIMESTAMP NOT NULL,
		updated_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_sweep
		ON reservations (state, expires_at)`,
	`CREATE TABLE IF NOT EXISTS usage_events (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		level           TEXT NOT NULL,
		credits_charged INTEGER NOT NULL,
		word_count      INTEGER NOT NULL,
		timestamp       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_events_user_time
		ON usage_events (user_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		excerpt    TEXT NOT NULL,
		result     TEXT NOT NULL,
		favorite   INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_user
		ON projects (user_id, created_at)`,
}

// migrate applies any migrations not yet recorded in schema_migrations.
// Each migration runs in its own transaction together with the version
// bookkeeping row, so a partial failure never records a version it did not
// fully apply.
func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback error is secondary
			return fmt.Errorf("sqlite: apply migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			_ = tx.Rollback() //nolint:errcheck // rollback error is secondary
			return fmt.Errorf("sqlite: record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %d: %w", version, err)
		}
	}

	return nil
}
