package alerts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/tenants"
)

type fakeQueue struct {
	enqueued []*outbound.Message
}

func (f *fakeQueue) Enqueue(ctx context.Context, q outbound.Querier, m *outbound.Message) (outbound.EnqueueOutcome, error) {
	f.enqueued = append(f.enqueued, m)
	return outbound.OutcomeQueued, nil
}

type fakeTenants struct{ tenant *tenants.Tenant }

func (f fakeTenants) GetByID(ctx context.Context, id string) (*tenants.Tenant, error) {
	if f.tenant == nil {
		return nil, tenants.ErrNotFound
	}
	return f.tenant, nil
}

func TestSweepFlushesDueBuffers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	tenantID := uuid.New()
	tenant := &tenants.Tenant{
		ID:             tenantID,
		BusinessName:   "Ace Plumbing",
		TrackingNumber: "+15550001111",
		OperatorNumber: "+15550002222",
	}

	mock.ExpectBegin()
	rows := pgxmock.NewRows([]string{"tenant_id", "phone", "messages", "count", "send_at"}).
		AddRow(tenantID, "+15551234567", "first\nsecond", 2, time.Now().Add(-time.Second))
	mock.ExpectQuery("SELECT tenant_id, phone, messages").
		WithArgs(50).
		WillReturnRows(rows)
	mock.ExpectExec("DELETE FROM alert_buffer").
		WithArgs(tenantID, "+15551234567").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	queue := &fakeQueue{}
	store := NewStore(mock)
	sweeper := NewSweeper(store, queue, fakeTenants{tenant}, nil)

	if n := sweeper.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 flush, got %d", n)
	}
	if len(queue.enqueued) != 1 {
		t.Fatalf("expected 1 enqueued alert, got %d", len(queue.enqueued))
	}
	alert := queue.enqueued[0]
	if alert.To != "+15550002222" {
		t.Fatalf("alert should go to the operator, got %s", alert.To)
	}
	if !strings.Contains(alert.Body, "sent 2 messages:") {
		t.Fatalf("unexpected alert body: %s", alert.Body)
	}
	if alert.ExternalID != "alert_+15551234567" {
		t.Fatalf("unexpected external id: %s", alert.ExternalID)
	}
}

func TestSweepNoDueBuffers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tenant_id, phone, messages").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "phone", "messages", "count", "send_at"}))
	mock.ExpectRollback()

	queue := &fakeQueue{}
	sweeper := NewSweeper(NewStore(mock), queue, fakeTenants{}, nil)
	if n := sweeper.Sweep(context.Background()); n != 0 {
		t.Fatalf("expected 0 flushes, got %d", n)
	}
	if len(queue.enqueued) != 0 {
		t.Fatal("nothing should be enqueued")
	}
}

func TestSweepSkipsUnknownTenant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	rows := pgxmock.NewRows([]string{"tenant_id", "phone", "messages", "count", "send_at"}).
		AddRow(uuid.New(), "+15551234567", "hello", 1, time.Now().Add(-time.Second))
	mock.ExpectQuery("SELECT tenant_id, phone, messages").
		WithArgs(50).
		WillReturnRows(rows)
	mock.ExpectCommit()
	mock.ExpectRollback()

	queue := &fakeQueue{}
	sweeper := NewSweeper(NewStore(mock), queue, fakeTenants{}, nil)
	if n := sweeper.Sweep(context.Background()); n != 0 {
		t.Fatalf("expected 0 flushes, got %d", n)
	}
}
