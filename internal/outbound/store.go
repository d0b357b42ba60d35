package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a queue row lookup misses.
var ErrNotFound = errors.New("outbound: message not found")

// Querier lets store writes ride an existing transaction.
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

// OptOutChecker reports whether a phone has an effective opt-out on
// file. The consent store's IsRevoked satisfies it.
type OptOutChecker func(ctx context.Context, phone string) (bool, error)

// Store persists the outbound SMS queue in Postgres.
type Store struct {
	pool         PgxPool
	stuckTimeout time.Duration
	nowFunc      func() time.Time
	optedOut     OptOutChecker
}

// DefaultStuckTimeout is how long a processing claim may hold before the
// row becomes claimable again. Covers worker crashes mid-send.
const DefaultStuckTimeout = 5 * time.Minute

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool, stuckTimeout: DefaultStuckTimeout, nowFunc: time.Now}
}

// WithStuckTimeout overrides the stuck-claim recovery timeout.
func (s *Store) WithStuckTimeout(d time.Duration) *Store {
	if d > 0 {
		s.stuckTimeout = d
	}
	return s
}

// WithNowFunc overrides the clock, for tests.
func (s *Store) WithNowFunc(now func() time.Time) *Store {
	if now != nil {
		s.nowFunc = now
	}
	return s
}

// WithOptOutCheck makes Enqueue reject messages to opted-out phones
// before they ever reach the queue.
func (s *Store) WithOptOutCheck(check OptOutChecker) *Store {
	s.optedOut = check
	return s
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

const messageColumns = `id, tenant_id, to_number, from_number, body, status,
	urgent, attempts, external_id, provider_sid, last_error, scheduled_at,
	locked_at, sent_at, created_at, updated_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.TenantID, &m.To, &m.From, &m.Body, &m.Status,
		&m.Urgent, &m.Attempts, &m.ExternalID, &m.ProviderSID, &m.LastError,
		&m.ScheduledAt, &m.LockedAt, &m.SentAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Enqueue inserts a pending message. Pass a Querier to ride a caller
// transaction (the alert sweeper does this), or nil for the pool.
//
// With a non-empty ExternalID the insert is idempotent: a live row
// (pending or processing) already holding that key makes this a no-op
// and the outcome reports deduplicated. Terminal rows free the key, so
// a cancelled nudge can be scheduled again later. An opt-out check, if
// configured, rejects the message before it touches the queue.
func (s *Store) Enqueue(ctx context.Context, q Querier, m *Message) (EnqueueOutcome, error) {
	if q == nil {
		q = s.pool
	}
	if s.optedOut != nil {
		revoked, err := s.optedOut(ctx, m.To)
		if err != nil {
			return "", fmt.Errorf("outbound: enqueue opt-out check: %w", err)
		}
		if revoked {
			return OutcomeRejected, nil
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.ScheduledAt.IsZero() {
		m.ScheduledAt = s.nowFunc()
	}
	query := `
		INSERT INTO outbound_messages (id, tenant_id, to_number, from_number, body, status, urgent, external_id, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8)
		ON CONFLICT (external_id) WHERE external_id <> '' AND status IN ('pending', 'processing') DO NOTHING
	`
	tag, err := q.Exec(ctx, query, m.ID, m.TenantID, m.To, m.From, m.Body, m.Urgent, m.ExternalID, m.ScheduledAt)
	if err != nil {
		return "", fmt.Errorf("outbound: enqueue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return OutcomeDeduplicated, nil
	}
	m.Status = StatusPending
	return OutcomeQueued, nil
}

// ClaimBatch atomically claims up to limit due messages, oldest first.
// Due means pending with its retry backoff elapsed, or processing with a
// claim older than the stuck timeout. SKIP LOCKED keeps concurrent
// dispatchers from double-claiming.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 10
	}
	now := s.nowFunc()
	query := `
		UPDATE outbound_messages
		SET status = 'processing', locked_at = now(), updated_at = now()
		WHERE id IN (
			SELECT id FROM outbound_messages
			WHERE (status = 'pending' AND scheduled_at <= now() AND (
					attempts = 0
					OR (attempts = 1 AND updated_at <= $1)
					OR (attempts = 2 AND updated_at <= $2)
					OR (attempts = 3 AND updated_at <= $3)
					OR (attempts = 4 AND updated_at <= $4)
					OR (attempts >= 5 AND updated_at <= $5)
				))
				OR (status = 'processing' AND locked_at < $6)
			ORDER BY created_at ASC
			LIMIT $7
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + messageColumns
	rows, err := s.pool.Query(ctx, query,
		now.Add(-BackoffDelay(1)),
		now.Add(-BackoffDelay(2)),
		now.Add(-BackoffDelay(3)),
		now.Add(-BackoffDelay(4)),
		now.Add(-BackoffDelay(5)),
		now.Add(-s.stuckTimeout),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("outbound: claim batch: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("outbound: scan claimed: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSent records a successful provider accept.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, providerSID string) error {
	query := `
		UPDATE outbound_messages
		SET status = 'sent', provider_sid = $2, sent_at = now(),
			locked_at = NULL, last_error = '', updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, providerSID)
	if err != nil {
		return fmt.Errorf("outbound: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleRetry records a failed attempt. The message goes back to
// pending with its backoff implied by the bumped attempt count, or to
// failed_permanent once attempts are exhausted. Returns the resulting
// status.
func (s *Store) ScheduleRetry(ctx context.Context, m *Message, sendErr string) (string, error) {
	next := StatusPending
	if m.Attempts+1 >= MaxAttempts {
		next = StatusFailedPermanent
	}
	query := `
		UPDATE outbound_messages
		SET status = $2, attempts = attempts + 1, last_error = $3,
			locked_at = NULL, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, m.ID, next, sendErr)
	if err != nil {
		return "", fmt.Errorf("outbound: schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrNotFound
	}
	return next, nil
}

// Release returns a claimed message to pending without touching its
// attempt count. Used for quiet-hours deferrals, which are not failures.
func (s *Store) Release(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE outbound_messages
		SET status = 'pending', locked_at = NULL, last_error = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("outbound: release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTerminalStatus moves a message into a terminal failure state
// (failed_optout, failed_safety).
func (s *Store) SetTerminalStatus(ctx context.Context, id uuid.UUID, status, reason string) error {
	query := `
		UPDATE outbound_messages
		SET status = $2, last_error = $3, locked_at = NULL, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, status, reason)
	if err != nil {
		return fmt.Errorf("outbound: set terminal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBody persists a rewritten body, e.g. after the compliance footer
// was appended.
func (s *Store) UpdateBody(ctx context.Context, id uuid.UUID, body string) error {
	query := `UPDATE outbound_messages SET body = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, body)
	if err != nil {
		return fmt.Errorf("outbound: update body: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPendingForPhone cancels every undelivered message to the phone
// across all tenants. Runs when the phone opts out.
func (s *Store) CancelPendingForPhone(ctx context.Context, q Querier, phone string) (int64, error) {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE outbound_messages
		SET status = 'failed_optout', last_error = 'recipient opted out',
			locked_at = NULL, updated_at = now()
		WHERE to_number = $1 AND status IN ('pending', 'processing')
	`
	tag, err := q.Exec(ctx, query, phone)
	if err != nil {
		return 0, fmt.Errorf("outbound: cancel pending for phone: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CancelByExternalID cancels the undelivered message holding the exact
// external id. The nudge canceller uses this when a lead replies.
func (s *Store) CancelByExternalID(ctx context.Context, q Querier, externalID, reason string) (int64, error) {
	if q == nil {
		q = s.pool
	}
	query := `
		UPDATE outbound_messages
		SET status = 'cancelled', last_error = $2, locked_at = NULL, updated_at = now()
		WHERE external_id = $1 AND status IN ('pending', 'processing')
	`
	tag, err := q.Exec(ctx, query, externalID, reason)
	if err != nil {
		return 0, fmt.Errorf("outbound: cancel by external id: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateStatusByProviderSID applies a delivery receipt. Returns
// ErrNotFound when no row carries the provider sid.
func (s *Store) UpdateStatusByProviderSID(ctx context.Context, providerSID, status, detail string) error {
	query := `
		UPDATE outbound_messages
		SET status = $2, last_error = $3, updated_at = now()
		WHERE provider_sid = $1
	`
	tag, err := s.pool.Exec(ctx, query, providerSID, status, detail)
	if err != nil {
		return fmt.Errorf("outbound: update status by sid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecentDuplicateExists reports whether the same body went to the same
// phone within the window. The safety gate uses this to suppress
// accidental double-sends.
func (s *Store) RecentDuplicateExists(ctx context.Context, to, body string, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM outbound_messages
			WHERE to_number = $1 AND body = $2
				AND status IN ('sent', 'delivered')
				AND sent_at > now() - $3
		)
	`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, to, body, window).Scan(&exists); err != nil {
		return false, fmt.Errorf("outbound: recent duplicate: %w", err)
	}
	return exists, nil
}

// CountsByStatus returns queue depth per status for a tenant. A nil
// tenant id aggregates across tenants.
func (s *Store) CountsByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int, error) {
	query := `
		SELECT status, COUNT(*) FROM outbound_messages
		WHERE $1::uuid IS NULL OR tenant_id = $1
		GROUP BY status
	`
	var arg any
	if tenantID != uuid.Nil {
		arg = tenantID
	}
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("outbound: counts by status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("outbound: scan counts: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// GetByID loads one queue row.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM outbound_messages WHERE id = $1`
	m, err := scanMessage(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("outbound: get by id: %w", err)
	}
	return m, nil
}
