package persistpg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS auth_records (
    subject TEXT PRIMARY KEY,
    token TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT '',
    profile_json TEXT NOT NULL DEFAULT '',
    external_provider BOOLEAN NOT NULL DEFAULT FALSE,
    provider_email TEXT NOT NULL DEFAULT '',
    saved_at_unix BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auth_records_saved_at ON auth_records (saved_at_unix);
`)
	return err
}
