package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier lets ledger writes ride an existing transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the consent ledger in Postgres.
type Store struct {
	pool       PgxPool
	impliedTTL time.Duration
	nowFunc    func() time.Time
}

// DefaultImpliedTTL is how long implied consent (a caller reaching out
// first) remains valid.
const DefaultImpliedTTL = 730 * 24 * time.Hour

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool, impliedTTL: DefaultImpliedTTL, nowFunc: time.Now}
}

// WithImpliedTTL overrides the implied-consent lifetime.
func (s *Store) WithImpliedTTL(ttl time.Duration) *Store {
	if ttl > 0 {
		s.impliedTTL = ttl
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

// RecordImplied appends an implied-consent entry. Implied consent expires;
// the caller contacting the business first is what grants it.
func (s *Store) RecordImplied(ctx context.Context, q Querier, tenantID uuid.UUID, phone, source string) error {
	if q == nil {
		q = s.pool
	}
	expires := s.nowFunc().Add(s.impliedTTL)
	query := `
		INSERT INTO consent_records (id, phone, tenant_id, kind, source, captured_at, expires_at)
		VALUES ($1, $2, $3, 'implied', $4, now(), $5)
	`
	if _, err := q.Exec(ctx, query, uuid.New(), phone, tenantID, source, expires); err != nil {
		return fmt.Errorf("consent: record implied: %w", err)
	}
	return nil
}

// RecordExpress appends an express-consent entry. Express consent never
// expires, and because revocation checks compare timestamps, a fresh
// express grant also lifts an earlier STOP.
func (s *Store) RecordExpress(ctx context.Context, q Querier, tenantID uuid.UUID, phone, source string) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO consent_records (id, phone, tenant_id, kind, source, captured_at, expires_at)
		VALUES ($1, $2, $3, 'express', $4, now(), NULL)
	`
	if _, err := q.Exec(ctx, query, uuid.New(), phone, tenantID, source); err != nil {
		return fmt.Errorf("consent: record express: %w", err)
	}
	return nil
}

// Revoke appends a revocation entry. Revocation is global across tenants
// and permanent, so tenant_id is left NULL.
func (s *Store) Revoke(ctx context.Context, q Querier, phone, source string) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO consent_records (id, phone, tenant_id, kind, source, captured_at, expires_at)
		VALUES ($1, $2, NULL, 'revoked', $3, now(), NULL)
	`
	if _, err := q.Exec(ctx, query, uuid.New(), phone, source); err != nil {
		return fmt.Errorf("consent: revoke: %w", err)
	}
	return nil
}

// revokedQuery decides effective revocation: a revoked row counts only
// while no express grant was captured after it. STOP then START leaves
// the phone reachable; START then STOP does not.
const revokedQuery = `
	SELECT EXISTS (
		SELECT 1 FROM consent_records
		WHERE phone = $1 AND kind = 'revoked'
			AND captured_at > COALESCE((
				SELECT MAX(captured_at) FROM consent_records
				WHERE phone = $1 AND kind = 'express'
			), '-infinity'::timestamptz)
	)
`

// Check derives the effective consent state for a phone within a tenant.
// An unanswered revocation anywhere wins; otherwise the latest unexpired
// grant for the tenant decides.
func (s *Store) Check(ctx context.Context, tenantID uuid.UUID, phone string) (State, error) {
	var revoked bool
	if err := s.pool.QueryRow(ctx, revokedQuery, phone).Scan(&revoked); err != nil {
		return StateNone, fmt.Errorf("consent: check revoked: %w", err)
	}
	if revoked {
		return StateRevoked, nil
	}

	var kind string
	query := `
		SELECT kind FROM consent_records
		WHERE phone = $1 AND tenant_id = $2
			AND kind IN ('implied', 'express')
			AND (expires_at IS NULL OR expires_at > now())
		ORDER BY captured_at DESC
		LIMIT 1
	`
	err := s.pool.QueryRow(ctx, query, phone, tenantID).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return StateNone, nil
	}
	if err != nil {
		return StateNone, fmt.Errorf("consent: check grant: %w", err)
	}
	switch kind {
	case KindExpress:
		return StateExpress, nil
	case KindImplied:
		return StateImplied, nil
	}
	return StateNone, nil
}

// IsRevoked reports whether the phone has an effective global revocation
// on file, i.e. one not superseded by a later express grant.
func (s *Store) IsRevoked(ctx context.Context, phone string) (bool, error) {
	var revoked bool
	if err := s.pool.QueryRow(ctx, revokedQuery, phone).Scan(&revoked); err != nil {
		return false, fmt.Errorf("consent: is revoked: %w", err)
	}
	return revoked, nil
}
