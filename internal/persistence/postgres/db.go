package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dialRetries = 10
	dialDelay   = 3 * time.Second
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	// Shared across all worker lanes; sized above the lane default so
	// a lane never waits on a connection during a sink write.
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Validate connectivity

	ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// NewPoolWithRetry dials the database with bounded retries. The store
// regularly comes up after the consumer in a fresh deployment, so a
// cold start waits for it rather than crash-looping.
func NewPoolWithRetry(ctx context.Context, databaseURL string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= dialRetries; attempt++ {
		pool, err := NewPool(ctx, databaseURL)
		if err == nil {
			return pool, nil
		}
		lastErr = err

		logger.Warn("db connect failed",
			"attempt", attempt,
			"max_attempts", dialRetries,
			"error", err,
		)

		timer := time.NewTimer(dialDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("db connect failed after %d attempts: %w", dialRetries, lastErr)
}
