// Package webhook deduplicates provider webhook deliveries. Providers
// retry aggressively, so every handler claims its event key before doing
// any side-effecting work.
package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// replayChecker is an optional fast-path cache in front of the DB check.
// A nil checker or a cache error never blocks processing.
type replayChecker interface {
	SeenRecently(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// Guard is the idempotency barrier over the webhook_events table.
type Guard struct {
	pool   rowQuerier
	replay replayChecker
}

func NewGuard(pool rowQuerier) *Guard {
	if pool == nil {
		panic("webhook: pgx pool required")
	}
	return &Guard{pool: pool}
}

// WithReplayCache attaches a short-TTL replay cache consulted before the
// DB. Advisory only; the DB row stays authoritative.
func (g *Guard) WithReplayCache(rc replayChecker) *Guard {
	g.replay = rc
	return g
}

// StatusKey builds the event key for dial status callbacks. The same call
// SID arrives once per dial outcome, so the outcome is part of the key.
func StatusKey(callSID, dialStatus string) string {
	return callSID + "_status_" + dialStatus
}

// AlreadyProcessed checks whether this event key was handled before.
func (g *Guard) AlreadyProcessed(ctx context.Context, key string) (bool, error) {
	if g.replay != nil {
		if seen, err := g.replay.SeenRecently(ctx, key); err == nil && seen {
			return true, nil
		}
	}
	query := `SELECT 1 FROM webhook_events WHERE event_key = $1`
	var exists int
	if err := g.pool.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("webhook: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed claims the event key, returning false when another
// delivery got there first.
func (g *Guard) MarkProcessed(ctx context.Context, key, eventType string) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_key, event_type)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := g.pool.Exec(ctx, query, key, eventType)
	if err != nil {
		return false, fmt.Errorf("webhook: mark processed: %w", err)
	}
	claimed := ct.RowsAffected() > 0
	if claimed && g.replay != nil {
		_ = g.replay.Remember(ctx, key)
	}
	return claimed, nil
}
