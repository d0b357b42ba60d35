package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists leads in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const leadColumns = `id, tenant_id, phone, source, status, intent, opt_out,
	last_message, voicemail_url, voicemail_text, contact_count,
	first_contact_at, last_contact_at, created_at, updated_at`

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.TenantID, &l.Phone, &l.Source, &l.Status,
		&l.Intent, &l.OptOut, &l.LastMessage, &l.VoicemailURL,
		&l.VoicemailText, &l.ContactCount, &l.FirstContactAt,
		&l.LastContactAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Touch creates the lead on first contact or refreshes it on repeat
// contact, bumping the contact counter and recording the latest message.
// Returns the post-update row.
func (s *Store) Touch(ctx context.Context, tenantID uuid.UUID, phone, source, message string) (*Lead, error) {
	query := `
		INSERT INTO leads (id, tenant_id, phone, source, status, last_message, contact_count)
		VALUES ($1, $2, $3, $4, 'new', $5, 1)
		ON CONFLICT (tenant_id, phone) DO UPDATE
		SET last_message = CASE WHEN EXCLUDED.last_message <> '' THEN EXCLUDED.last_message ELSE leads.last_message END,
			contact_count = leads.contact_count + 1,
			last_contact_at = now(),
			updated_at = now()
		RETURNING ` + leadColumns
	l, err := scanLead(s.pool.QueryRow(ctx, query, uuid.New(), tenantID, phone, source, message))
	if err != nil {
		return nil, fmt.Errorf("leads: touch: %w", err)
	}
	return l, nil
}

// Get loads a lead by tenant and phone.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, phone string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND phone = $2`
	l, err := scanLead(s.pool.QueryRow(ctx, query, tenantID, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leads: get: %w", err)
	}
	return l, nil
}

// SetStatus updates the lead status without guards. Dashboard use only;
// the pipeline goes through MarkContacted and MarkReplied.
func (s *Store) SetStatus(ctx context.Context, tenantID uuid.UUID, phone, status string) error {
	query := `UPDATE leads SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND phone = $2`
	tag, err := s.pool.Exec(ctx, query, tenantID, phone, status)
	if err != nil {
		return fmt.Errorf("leads: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// MarkContacted advances a fresh lead once our first text goes out.
// Never regresses a lead that already replied or booked.
func (s *Store) MarkContacted(ctx context.Context, tenantID uuid.UUID, phone string) error {
	query := `UPDATE leads SET status = 'contacted', updated_at = now()
		WHERE tenant_id = $1 AND phone = $2 AND status = 'new'`
	if _, err := s.pool.Exec(ctx, query, tenantID, phone); err != nil {
		return fmt.Errorf("leads: mark contacted: %w", err)
	}
	return nil
}

// MarkReplied records that the lead texted back. Booked leads stay
// booked; only the dashboard moves them.
func (s *Store) MarkReplied(ctx context.Context, tenantID uuid.UUID, phone string) error {
	query := `UPDATE leads SET status = 'replied', updated_at = now()
		WHERE tenant_id = $1 AND phone = $2 AND status <> 'booked'`
	if _, err := s.pool.Exec(ctx, query, tenantID, phone); err != nil {
		return fmt.Errorf("leads: mark replied: %w", err)
	}
	return nil
}

// SetIntent records the classifier's verdict for the lead.
func (s *Store) SetIntent(ctx context.Context, tenantID uuid.UUID, phone, intent string) error {
	query := `UPDATE leads SET intent = $3, updated_at = now()
		WHERE tenant_id = $1 AND phone = $2`
	if _, err := s.pool.Exec(ctx, query, tenantID, phone, intent); err != nil {
		return fmt.Errorf("leads: set intent: %w", err)
	}
	return nil
}

// CountByIntent counts a tenant's leads with the intent since the cutoff.
// Feeds the dashboard revenue estimate.
func (s *Store) CountByIntent(ctx context.Context, tenantID uuid.UUID, intent string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM leads
		WHERE tenant_id = $1 AND intent = $2 AND last_contact_at >= $3`
	var n int
	if err := s.pool.QueryRow(ctx, query, tenantID, intent, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("leads: count by intent: %w", err)
	}
	return n, nil
}

// MarkOptedOut flags every lead for the phone across all tenants.
// Opt-outs are global, so no tenant filter.
func (s *Store) MarkOptedOut(ctx context.Context, phone string) error {
	query := `UPDATE leads SET opt_out = TRUE, updated_at = now() WHERE phone = $1`
	if _, err := s.pool.Exec(ctx, query, phone); err != nil {
		return fmt.Errorf("leads: mark opted out: %w", err)
	}
	return nil
}

// ClearOptOut lifts the opt-out flag after an explicit START.
func (s *Store) ClearOptOut(ctx context.Context, phone string) error {
	query := `UPDATE leads SET opt_out = FALSE, updated_at = now() WHERE phone = $1`
	if _, err := s.pool.Exec(ctx, query, phone); err != nil {
		return fmt.Errorf("leads: clear opt out: %w", err)
	}
	return nil
}

// AttachVoicemail records the recording URL and, once transcribed, the text.
func (s *Store) AttachVoicemail(ctx context.Context, tenantID uuid.UUID, phone, url, transcript string) error {
	query := `UPDATE leads
		SET voicemail_url = $3,
			voicemail_text = CASE WHEN $4 <> '' THEN $4 ELSE voicemail_text END,
			source = 'voicemail',
			updated_at = now()
		WHERE tenant_id = $1 AND phone = $2`
	tag, err := s.pool.Exec(ctx, query, tenantID, phone, url, transcript)
	if err != nil {
		return fmt.Errorf("leads: attach voicemail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// ListRecent returns the tenant's most recently contacted leads.
func (s *Store) ListRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + leadColumns + `
		FROM leads
		WHERE tenant_id = $1
		ORDER BY last_contact_at DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list recent: %w", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
