package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no tenant matches the lookup.
var ErrNotFound = errors.New("tenants: not found")

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists tenant configuration in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const tenantColumns = `id, slug, business_name, tracking_number, operator_number,
	alert_number, timezone, hours_json, greeting, voicemail_prompt,
	emergency_mode, ai_active, average_job_value, review_link, active,
	created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	var hoursJSON []byte
	err := row.Scan(&t.ID, &t.Slug, &t.BusinessName, &t.TrackingNumber,
		&t.OperatorNumber, &t.AlertNumber, &t.Timezone, &hoursJSON,
		&t.Greeting, &t.VoicemailPrompt, &t.EmergencyMode, &t.AIActive,
		&t.AverageJobValue, &t.ReviewLink, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &t.Hours); err != nil {
			return nil, fmt.Errorf("tenants: decode hours: %w", err)
		}
	}
	return &t, nil
}

// ResolveByTrackingNumber finds the active tenant owning the inbound
// number a webhook arrived on.
func (s *Store) ResolveByTrackingNumber(ctx context.Context, number string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + `
		FROM tenants
		WHERE tracking_number = $1 AND active
		LIMIT 1`
	t, err := scanTenant(s.pool.QueryRow(ctx, query, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: resolve by tracking number: %w", err)
	}
	return t, nil
}

// ResolveByOperatorNumber is the fallback for dial status callbacks where
// the provider reports the operator leg's number instead of the tracking
// number.
func (s *Store) ResolveByOperatorNumber(ctx context.Context, number string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + `
		FROM tenants
		WHERE operator_number = $1 AND active
		LIMIT 1`
	t, err := scanTenant(s.pool.QueryRow(ctx, query, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: resolve by operator number: %w", err)
	}
	return t, nil
}

// GetByID loads a tenant by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenants: get by id: %w", err)
	}
	return t, nil
}

// SetAIActive toggles automated replies for a tenant. The dashboard's
// pause switch.
func (s *Store) SetAIActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE tenants SET ai_active = $2, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("tenants: set ai active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Upsert creates or updates a tenant keyed by slug.
func (s *Store) Upsert(ctx context.Context, t *Tenant) error {
	hoursJSON, err := json.Marshal(t.Hours)
	if err != nil {
		return fmt.Errorf("tenants: encode hours: %w", err)
	}
	query := `
		INSERT INTO tenants (id, slug, business_name, tracking_number, operator_number,
			alert_number, timezone, hours_json, greeting, voicemail_prompt,
			emergency_mode, ai_active, average_job_value, review_link, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (slug) DO UPDATE
		SET business_name = EXCLUDED.business_name,
			tracking_number = EXCLUDED.tracking_number,
			operator_number = EXCLUDED.operator_number,
			alert_number = EXCLUDED.alert_number,
			timezone = EXCLUDED.timezone,
			hours_json = EXCLUDED.hours_json,
			greeting = EXCLUDED.greeting,
			voicemail_prompt = EXCLUDED.voicemail_prompt,
			emergency_mode = EXCLUDED.emergency_mode,
			ai_active = EXCLUDED.ai_active,
			average_job_value = EXCLUDED.average_job_value,
			review_link = EXCLUDED.review_link,
			active = EXCLUDED.active,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, query, t.ID, t.Slug, t.BusinessName, t.TrackingNumber,
		t.OperatorNumber, t.AlertNumber, t.Timezone, hoursJSON, t.Greeting,
		t.VoicemailPrompt, t.EmergencyMode, t.AIActive, t.AverageJobValue,
		t.ReviewLink, t.Active)
	if err != nil {
		return fmt.Errorf("tenants: upsert: %w", err)
	}
	return nil
}
