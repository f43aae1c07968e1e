// Package postgres provides PostgreSQL-backed implementations of the card and
// strategy stores. Documents live in JSONB columns; the row id stays outside
// the document so renames never desync the key.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const connectTimeout = 30 * time.Second

// Connect parses dsn, opens a pgx pool, and pings it with exponential backoff
// until the database answers or the timeout elapses. Cold starts routinely
// race the database container, so a failed first ping is not fatal.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	deadline := time.Now().Add(connectTimeout)
	backoffCfg := backoff.NewExponentialBackOff()
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		if ctx.Err() != nil || time.Now().After(deadline) {
			pool.Close()
			return nil, fmt.Errorf("postgres: ping: %w", err)
		}
		sleep := backoffCfg.NextBackOff()
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
}
