package persistpg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Joapozzo/loopin-gateway/internal/persist"
)

// PostgresAuthStore persists auth records in PostgreSQL through a pgx pool.
// It is the native alternative to the GORM-backed persist.DatabaseStore for
// deployments that already run on pgx.
type PostgresAuthStore struct {
	pool  *pgxpool.Pool
	ttl   time.Duration
	clock persist.Clock
}

// NewPostgresAuthStore constructs a Postgres store.
func NewPostgresAuthStore(pool *pgxpool.Pool, ttl time.Duration, clock persist.Clock) *PostgresAuthStore {
	if ttl <= 0 {
		ttl = persist.DefaultRecordTTL
	}
	if clock == nil {
		clock = persist.NewSystemClock()
	}
	return &PostgresAuthStore{pool: pool, ttl: ttl, clock: clock}
}

// Save upserts the record for its subject.
func (store *PostgresAuthStore) Save(ctx context.Context, record persist.Record) error {
	if record.Subject == "" {
		return fmt.Errorf("auth_store.save.pgx: %w", persist.ErrEmptySubject)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO auth_records (subject, token, role, profile_json, external_provider, provider_email, saved_at_unix)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (subject) DO UPDATE SET
    token = EXCLUDED.token,
    role = EXCLUDED.role,
    profile_json = EXCLUDED.profile_json,
    external_provider = EXCLUDED.external_provider,
    provider_email = EXCLUDED.provider_email,
    saved_at_unix = EXCLUDED.saved_at_unix
`, record.Subject, record.Token, record.Role, record.ProfileJSON, record.ExternalProvider, record.ProviderEmail, store.clock.Now().Unix())
	if execErr != nil {
		return fmt.Errorf("auth_store.save.pgx: %w", execErr)
	}
	return nil
}

// Load returns the record for the subject, purging it when expired.
func (store *PostgresAuthStore) Load(ctx context.Context, subject string) (persist.Record, error) {
	if subject == "" {
		return persist.Record{}, fmt.Errorf("auth_store.load.pgx: %w", persist.ErrEmptySubject)
	}
	var record persist.Record
	row := store.pool.QueryRow(ctx, `
SELECT subject, token, role, profile_json, external_provider, provider_email, saved_at_unix
FROM auth_records
WHERE subject = $1
`, subject)
	scanErr := row.Scan(&record.Subject, &record.Token, &record.Role, &record.ProfileJSON, &record.ExternalProvider, &record.ProviderEmail, &record.SavedAtUnix)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return persist.Record{}, fmt.Errorf("auth_store.load.pgx: %w", persist.ErrRecordNotFound)
		}
		return persist.Record{}, fmt.Errorf("auth_store.load.pgx: %w", scanErr)
	}
	if store.clock.Now().After(time.Unix(record.SavedAtUnix, 0).Add(store.ttl)) {
		if deleteErr := store.Delete(ctx, subject); deleteErr != nil {
			return persist.Record{}, deleteErr
		}
		return persist.Record{}, fmt.Errorf("auth_store.load.pgx: %w", persist.ErrRecordExpired)
	}
	return record, nil
}

// Delete removes the record for the subject; absent records are not an error.
func (store *PostgresAuthStore) Delete(ctx context.Context, subject string) error {
	if subject == "" {
		return fmt.Errorf("auth_store.delete.pgx: %w", persist.ErrEmptySubject)
	}
	_, execErr := store.pool.Exec(ctx, `DELETE FROM auth_records WHERE subject = $1`, subject)
	if execErr != nil {
		return fmt.Errorf("auth_store.delete.pgx: %w", execErr)
	}
	return nil
}
