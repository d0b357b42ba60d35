// Package alerts batches lead activity into debounced operator alerts.
// Each inbound message restarts a 30-second quiescence window; when the
// lead goes quiet, one combined alert goes out instead of one per text.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultDebounce is the quiescence window before a buffered alert is
// flushed.
const DefaultDebounce = 30 * time.Second

// messageSeparator joins buffered texts inside one alert.
const messageSeparator = "\n"

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Entry is one buffered alert waiting out its debounce window.
type Entry struct {
	TenantID uuid.UUID
	Phone    string
	Messages []string
	Count    int
	SendAt   time.Time
}

// Store persists the alert buffer in Postgres.
type Store struct {
	pool     PgxPool
	debounce time.Duration
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool, debounce: DefaultDebounce}
}

// WithDebounce overrides the quiescence window.
func (s *Store) WithDebounce(d time.Duration) *Store {
	if d > 0 {
		s.debounce = d
	}
	return s
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// Buffer appends a lead message to the tenant/phone buffer and restarts
// the debounce window. Activity while buffered keeps pushing send_at
// out, so a chatty lead produces one alert, not ten.
func (s *Store) Buffer(ctx context.Context, tenantID uuid.UUID, phone, text string) error {
	query := `
		INSERT INTO alert_buffer (tenant_id, phone, messages, count, send_at)
		VALUES ($1, $2, $3, 1, now() + $4)
		ON CONFLICT (tenant_id, phone) DO UPDATE
		SET messages = alert_buffer.messages || $5 || $3,
			count = alert_buffer.count + 1,
			send_at = now() + $4,
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query, tenantID, phone, text, s.debounce, messageSeparator)
	if err != nil {
		return fmt.Errorf("alerts: buffer: %w", err)
	}
	return nil
}

// ListDue returns buffers whose window elapsed, locked for the caller's
// transaction so concurrent sweepers skip them.
func (s *Store) ListDue(ctx context.Context, q Querier, limit int) ([]Entry, error) {
	if q == nil {
		q = s.pool
	}
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT tenant_id, phone, messages, count, send_at
		FROM alert_buffer
		WHERE send_at <= now()
		ORDER BY send_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("alerts: list due: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var messages string
		if err := rows.Scan(&e.TenantID, &e.Phone, &messages, &e.Count, &e.SendAt); err != nil {
			return nil, fmt.Errorf("alerts: scan due: %w", err)
		}
		if messages != "" {
			e.Messages = strings.Split(messages, messageSeparator)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Expedite makes any buffered context for the phone due immediately.
// Used when an urgent message arrives: the urgent alert goes out on its
// own, and the waiting buffer flushes right behind it.
func (s *Store) Expedite(ctx context.Context, tenantID uuid.UUID, phone string) error {
	query := `UPDATE alert_buffer SET send_at = now(), updated_at = now()
		WHERE tenant_id = $1 AND phone = $2`
	if _, err := s.pool.Exec(ctx, query, tenantID, phone); err != nil {
		return fmt.Errorf("alerts: expedite: %w", err)
	}
	return nil
}

// Delete removes a flushed buffer row.
func (s *Store) Delete(ctx context.Context, q Querier, tenantID uuid.UUID, phone string) error {
	if q == nil {
		q = s.pool
	}
	query := `DELETE FROM alert_buffer WHERE tenant_id = $1 AND phone = $2`
	if _, err := q.Exec(ctx, query, tenantID, phone); err != nil {
		return fmt.Errorf("alerts: delete: %w", err)
	}
	return nil
}

// FormatAlert renders the operator alert text for a flushed buffer.
func FormatAlert(phone string, count int, messages []string) string {
	noun := "messages"
	if count == 1 {
		noun = "message"
	}
	return fmt.Sprintf("🔔 Lead Alert: %s sent %d %s:\n---\n%s\n---",
		phone, count, noun, strings.Join(messages, "\n"))
}

// FormatUrgentAlert renders the immediate alert for urgent messages that
// bypass the debounce buffer.
func FormatUrgentAlert(phone, text string) string {
	return fmt.Sprintf("🚨 URGENT Lead Alert: %s\n---\n%s\n---", phone, text)
}
