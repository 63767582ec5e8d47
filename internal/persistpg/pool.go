package persistpg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BuildPool opens a pgx pool sized for auth-record traffic: a write per
// login, a read per bootstrap, nothing sustained.
func BuildPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, parseErr := pgxpool.ParseConfig(databaseURL)
	if parseErr != nil {
		return nil, fmt.Errorf("auth_store.pool_config.pgx: %w", parseErr)
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConns = 4
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	pool, openErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if openErr != nil {
		return nil, fmt.Errorf("auth_store.pool_open.pgx: %w", openErr)
	}
	return pool, nil
}
