// Package cache provides Redis-backed fast paths for hot compliance
// checks. The database remains the source of truth everywhere; a missing
// or failing Redis degrades to DB lookups, never to blocked traffic.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	optOutKeyPrefix = "optout:"
	replayKeyPrefix = "webhook:seen:"
)

// Client wraps the shared Redis connection.
type Client struct {
	rdb       *redis.Client
	replayTTL time.Duration
}

func New(rdb *redis.Client, replayTTL time.Duration) *Client {
	if rdb == nil {
		return nil
	}
	if replayTTL <= 0 {
		replayTTL = 10 * time.Minute
	}
	return &Client{rdb: rdb, replayTTL: replayTTL}
}

// MarkOptedOut records a permanent opt-out marker for the phone.
func (c *Client) MarkOptedOut(ctx context.Context, phone string) error {
	if c == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, optOutKeyPrefix+phone, "1", 0).Err(); err != nil {
		return fmt.Errorf("cache: mark opted out: %w", err)
	}
	return nil
}

// ClearOptOut drops the opt-out marker after an explicit resubscribe.
func (c *Client) ClearOptOut(ctx context.Context, phone string) error {
	if c == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, optOutKeyPrefix+phone).Err(); err != nil {
		return fmt.Errorf("cache: clear opt out: %w", err)
	}
	return nil
}

// IsOptedOut reports a cached opt-out. False with no error on any cache
// failure so the caller falls through to the DB.
func (c *Client) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, optOutKeyPrefix+phone).Result()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// SeenRecently reports whether a webhook event key was observed within
// the replay TTL.
func (c *Client) SeenRecently(ctx context.Context, key string) (bool, error) {
	if c == nil {
		return false, nil
	}
	n, err := c.rdb.Exists(ctx, replayKeyPrefix+key).Result()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

// Ping reports backend reachability, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Remember records a webhook event key with the replay TTL.
func (c *Client) Remember(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	if err := c.rdb.Set(ctx, replayKeyPrefix+key, "1", c.replayTTL).Err(); err != nil {
		return fmt.Errorf("cache: remember webhook key: %w", err)
	}
	return nil
}
