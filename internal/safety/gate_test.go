package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/consent"
)

type fakeConsent struct {
	state   consent.State
	revoked bool
	err     error
}

func (f *fakeConsent) Check(ctx context.Context, tenantID uuid.UUID, phone string) (consent.State, error) {
	return f.state, f.err
}

func (f *fakeConsent) IsRevoked(ctx context.Context, phone string) (bool, error) {
	return f.revoked, f.err
}

type fakeDupes struct {
	dup bool
	err error
}

func (f *fakeDupes) RecentDuplicateExists(ctx context.Context, to, body string, window time.Duration) (bool, error) {
	return f.dup, f.err
}

type fakeOptOutCache struct{ out bool }

func (f *fakeOptOutCache) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	return f.out, nil
}

func midday() time.Time {
	return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func midnight() time.Time {
	return time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
}

func TestGateAllows(t *testing.T) {
	g := NewGate(&fakeConsent{state: consent.StateImplied}, &fakeDupes{}, nil).
		WithNowFunc(midday)
	v, err := g.Check(context.Background(), Request{To: "+1555", Body: "hi"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Decision != DecisionAllow {
		t.Fatalf("expected allow, got %s (%s)", v.Decision, v.Reason)
	}
}

func TestGateBlocksRevoked(t *testing.T) {
	g := NewGate(&fakeConsent{state: consent.StateRevoked}, &fakeDupes{}, nil).
		WithNowFunc(midday)
	v, err := g.Check(context.Background(), Request{To: "+1555", Body: "hi"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Decision != DecisionBlock {
		t.Fatalf("expected block, got %s", v.Decision)
	}
}

func TestGateBlocksNoConsent(t *testing.T) {
	g := NewGate(&fakeConsent{state: consent.StateNone}, &fakeDupes{}, nil).
		WithNowFunc(midday)
	v, _ := g.Check(context.Background(), Request{To: "+1555", Body: "hi"})
	if v.Decision != DecisionBlock {
		t.Fatalf("expected block for missing consent, got %s", v.Decision)
	}
}

func TestGateOptOutCacheShortCircuits(t *testing.T) {
	// The consent checker would allow, but the cache says opted out.
	g := NewGate(&fakeConsent{state: consent.StateExpress}, &fakeDupes{}, nil).
		WithOptOutCache(&fakeOptOutCache{out: true}).
		WithNowFunc(midday)
	v, _ := g.Check(context.Background(), Request{To: "+1555", Body: "hi"})
	if v.Decision != DecisionBlock {
		t.Fatalf("expected block via cache, got %s", v.Decision)
	}
}

func TestGateSuppressesDuplicates(t *testing.T) {
	g := NewGate(&fakeConsent{state: consent.StateImplied}, &fakeDupes{dup: true}, nil).
		WithNowFunc(midday)
	v, _ := g.Check(context.Background(), Request{To: "+1555", Body: "hi"})
	if v.Decision != DecisionSuppress {
		t.Fatalf("expected suppress, got %s", v.Decision)
	}
}

func TestGateDefersOutsideWindow(t *testing.T) {
	g := NewGate(&fakeConsent{state: consent.StateImplied}, &fakeDupes{}, nil).
		WithNowFunc(midnight)
	v, _ := g.Check(context.Background(), Request{To: "+1555", Body: "hi"})
	if v.Decision != DecisionDefer {
		t.Fatalf("expected defer at 23:30, got %s", v.Decision)
	}
}

func TestGateUrgentBypassesWindow(t *testing.T) {
	g := NewGate(&fakeConsent{state: consent.StateImplied}, &fakeDupes{}, nil).
		WithNowFunc(midnight)
	v, _ := g.Check(context.Background(), Request{To: "+1555", Body: "hi", Urgent: true})
	if v.Decision != DecisionAllow {
		t.Fatalf("urgent send should bypass quiet hours, got %s", v.Decision)
	}
}

func TestGateOperatorBypassesGrantAndWindow(t *testing.T) {
	// No consent grant on file and outside the send window; alerts to
	// the business's own number go out anyway.
	g := NewGate(&fakeConsent{state: consent.StateNone}, &fakeDupes{}, nil).
		WithNowFunc(midnight)
	v, err := g.Check(context.Background(), Request{To: "+1999", Body: "alert", Operator: true})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Decision != DecisionAllow {
		t.Fatalf("operator traffic should bypass consent grant and window, got %s", v.Decision)
	}
}

func TestGateOperatorStillHonorsOptOut(t *testing.T) {
	g := NewGate(&fakeConsent{revoked: true}, &fakeDupes{}, nil).
		WithNowFunc(midday)
	v, err := g.Check(context.Background(), Request{To: "+1999", Body: "alert", Operator: true})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if v.Decision != DecisionBlock {
		t.Fatalf("opted-out operator number must not receive alerts, got %s", v.Decision)
	}
}

func TestGateOperatorOptOutCacheShortCircuits(t *testing.T) {
	g := NewGate(&fakeConsent{}, &fakeDupes{}, nil).
		WithOptOutCache(&fakeOptOutCache{out: true}).
		WithNowFunc(midday)
	v, _ := g.Check(context.Background(), Request{To: "+1999", Body: "alert", Operator: true})
	if v.Decision != DecisionBlock {
		t.Fatalf("expected block via cache for operator traffic, got %s", v.Decision)
	}
}

func TestGateSurfacesConsentErrors(t *testing.T) {
	g := NewGate(&fakeConsent{err: errors.New("db down")}, &fakeDupes{}, nil).
		WithNowFunc(midday)
	if _, err := g.Check(context.Background(), Request{To: "+1555", Body: "hi"}); err == nil {
		t.Fatal("expected error surfaced")
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("08:00", "21:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.StartMinutes != 480 || w.EndMinutes != 1260 {
		t.Fatalf("unexpected window %+v", w)
	}
	if _, err := ParseWindow("8am", "21:00"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWindowMidnightCrossing(t *testing.T) {
	w := Window{StartMinutes: 22 * 60, EndMinutes: 2 * 60}
	at := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	if !w.AllowedAt(at, time.UTC) {
		t.Fatal("23:00 inside 22:00-02:00 window")
	}
	at = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if w.AllowedAt(at, time.UTC) {
		t.Fatal("12:00 outside 22:00-02:00 window")
	}
}
