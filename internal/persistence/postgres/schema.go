package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema statements executed at process startup. Idempotent so multiple
// workers can race the bootstrap safely.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
        account_id     TEXT PRIMARY KEY,
        email          TEXT NOT NULL,
        password_digest TEXT NOT NULL,
        display_name   TEXT NOT NULL DEFAULT '',
        height_cm      INTEGER,
        weight_kg      INTEGER,
        goal           TEXT,
        activity_level TEXT,
        created_at     TIMESTAMPTZ NOT NULL
    )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (email)`,
	`CREATE TABLE IF NOT EXISTS metrics_history (
        history_id  BIGSERIAL PRIMARY KEY,
        account_id  TEXT NOT NULL,
        field_name  TEXT NOT NULL,
        old_value   INTEGER,
        new_value   INTEGER,
        changed_at  TIMESTAMPTZ NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS metrics_history_account_idx ON metrics_history (account_id, changed_at DESC)`,
}

// EnsureSchema creates the accounts and metrics_history tables if absent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
