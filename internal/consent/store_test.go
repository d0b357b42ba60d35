package consent

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestRecordImpliedSetsExpiry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := (&Store{pool: mock, impliedTTL: DefaultImpliedTTL, nowFunc: time.Now}).
		WithNowFunc(func() time.Time { return fixed })
	tenantID := uuid.New()

	mock.ExpectExec("INSERT INTO consent_records").
		WithArgs(pgxmock.AnyArg(), "+15551234567", tenantID, "missed_call", fixed.Add(DefaultImpliedTTL)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.RecordImplied(context.Background(), nil, tenantID, "+15551234567", "missed_call"); err != nil {
		t.Fatalf("record implied: %v", err)
	}
}

func TestRecordExpressNeverExpires(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	tenantID := uuid.New()
	mock.ExpectExec("INSERT INTO consent_records").
		WithArgs(pgxmock.AnyArg(), "+15551234567", tenantID, "sms_start").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.RecordExpress(context.Background(), nil, tenantID, "+15551234567", "sms_start"); err != nil {
		t.Fatalf("record express: %v", err)
	}
}

func TestRevokeIsGlobal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectExec("INSERT INTO consent_records").
		WithArgs(pgxmock.AnyArg(), "+15551234567", "sms_stop").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.Revoke(context.Background(), nil, "+15551234567", "sms_stop"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}

func TestCheckRevokedDominates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("+15551234567").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	state, err := store.Check(context.Background(), uuid.New(), "+15551234567")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state != StateRevoked {
		t.Fatalf("expected revoked, got %s", state)
	}
	if state.Allows() {
		t.Fatalf("revoked state must not allow sends")
	}
}

func TestCheckLatestGrantWins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	tenantID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("+15551234567").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT kind FROM consent_records").
		WithArgs("+15551234567", tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"kind"}).AddRow("express"))

	state, err := store.Check(context.Background(), tenantID, "+15551234567")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state != StateExpress {
		t.Fatalf("expected express, got %s", state)
	}
}

func TestCheckNoHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	tenantID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("+15559990000").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT kind FROM consent_records").
		WithArgs("+15559990000", tenantID).
		WillReturnError(pgx.ErrNoRows)

	state, err := store.Check(context.Background(), tenantID, "+15559990000")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state != StateNone {
		t.Fatalf("expected none, got %s", state)
	}
}
