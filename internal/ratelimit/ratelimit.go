// Package ratelimit caps inbound message processing per phone using a
// fixed window persisted in Postgres, so limits survive restarts and
// hold across replicas.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadline/leadline/pkg/logging"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Limiter is a fixed-window counter keyed by an arbitrary string
// (typically a phone number).
type Limiter struct {
	pool   rowQuerier
	window time.Duration
	max    int
	logger *logging.Logger
}

func NewLimiter(pool rowQuerier, window time.Duration, max int, logger *logging.Logger) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 10
	}
	return &Limiter{pool: pool, window: window, max: max, logger: logger}
}

// Allow increments the window counter for key and reports whether the
// request is within the limit. Store failures fail open: a broken
// limiter must never drop real lead traffic.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	query := `
		INSERT INTO rate_limit_windows (key, count, reset_at)
		VALUES ($1, 1, now() + $2)
		ON CONFLICT (key) DO UPDATE
		SET count = CASE WHEN rate_limit_windows.reset_at <= now() THEN 1
			ELSE rate_limit_windows.count + 1 END,
			reset_at = CASE WHEN rate_limit_windows.reset_at <= now() THEN now() + $2
			ELSE rate_limit_windows.reset_at END
		RETURNING count
	`
	var count int
	if err := l.pool.QueryRow(ctx, query, key, l.window).Scan(&count); err != nil {
		if l.logger != nil {
			l.logger.Warn("rate limit check failed, allowing", "key", key, "error", err)
		}
		return true, fmt.Errorf("ratelimit: allow: %w", err)
	}
	return count <= l.max, nil
}

// Reset clears the window for key. Used by tests and admin tooling.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if _, err := l.pool.Exec(ctx, `DELETE FROM rate_limit_windows WHERE key = $1`, key); err != nil {
		return fmt.Errorf("ratelimit: reset: %w", err)
	}
	return nil
}
