// Package safety is the last line of defense before any outbound send.
// Every message passes the same ordered checks: consent, opt-out,
// duplicate suppression, and the allowed time window.
package safety

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/pkg/logging"
)

// Decision is the gate's verdict for one message.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionBlock    Decision = "block"    // terminal, never send
	DecisionDefer    Decision = "defer"    // resend later, outside quiet hours
	DecisionSuppress Decision = "suppress" // duplicate, drop silently
)

// Verdict pairs a decision with its reason for the audit log.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Request describes the message under evaluation. Operator traffic
// (alerts to the business's own number) skips the consent-grant
// requirement and quiet hours, but an opt-out still blocks it.
type Request struct {
	TenantID uuid.UUID
	To       string
	Body     string
	Location *time.Location
	Operator bool
	Urgent   bool
}

type consentChecker interface {
	Check(ctx context.Context, tenantID uuid.UUID, phone string) (consent.State, error)
	IsRevoked(ctx context.Context, phone string) (bool, error)
}

type optOutCache interface {
	IsOptedOut(ctx context.Context, phone string) (bool, error)
}

type duplicateChecker interface {
	RecentDuplicateExists(ctx context.Context, to, body string, window time.Duration) (bool, error)
}

// Gate evaluates the pre-send checks.
type Gate struct {
	consent   consentChecker
	cache     optOutCache
	dupes     duplicateChecker
	window    Window
	dupWindow time.Duration
	nowFunc   func() time.Time
	logger    *logging.Logger
}

func NewGate(cc consentChecker, dupes duplicateChecker, logger *logging.Logger) *Gate {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{
		consent:   cc,
		dupes:     dupes,
		window:    DefaultWindow,
		dupWindow: time.Hour,
		nowFunc:   time.Now,
		logger:    logger,
	}
}

// WithOptOutCache attaches the Redis fast path for opt-out checks.
func (g *Gate) WithOptOutCache(c optOutCache) *Gate {
	g.cache = c
	return g
}

// WithWindow overrides the allowed send window.
func (g *Gate) WithWindow(w Window) *Gate {
	g.window = w
	return g
}

// WithDuplicateWindow overrides the duplicate-suppression lookback.
func (g *Gate) WithDuplicateWindow(d time.Duration) *Gate {
	if d > 0 {
		g.dupWindow = d
	}
	return g
}

// WithNowFunc overrides the clock, for tests.
func (g *Gate) WithNowFunc(now func() time.Time) *Gate {
	if now != nil {
		g.nowFunc = now
	}
	return g
}

// Check runs the ordered safety checks. Infrastructure errors from the
// cache fail open to the DB; DB errors surface so the dispatcher retries
// rather than guessing.
func (g *Gate) Check(ctx context.Context, req Request) (Verdict, error) {
	// Opt-out binds every recipient, operator destinations included.
	// The cache fast path answers without a DB trip.
	if g.cache != nil {
		if out, _ := g.cache.IsOptedOut(ctx, req.To); out {
			return Verdict{Decision: DecisionBlock, Reason: "recipient opted out"}, nil
		}
	}
	if req.Operator {
		revoked, err := g.consent.IsRevoked(ctx, req.To)
		if err != nil {
			return Verdict{}, err
		}
		if revoked {
			return Verdict{Decision: DecisionBlock, Reason: "recipient opted out"}, nil
		}
	} else {
		state, err := g.consent.Check(ctx, req.TenantID, req.To)
		if err != nil {
			return Verdict{}, err
		}
		if state == consent.StateRevoked {
			return Verdict{Decision: DecisionBlock, Reason: "recipient opted out"}, nil
		}
		if !state.Allows() {
			return Verdict{Decision: DecisionBlock, Reason: "no consent on file"}, nil
		}
	}

	dup, err := g.dupes.RecentDuplicateExists(ctx, req.To, req.Body, g.dupWindow)
	if err != nil {
		return Verdict{}, err
	}
	if dup {
		return Verdict{Decision: DecisionSuppress, Reason: "duplicate body within window"}, nil
	}

	if !req.Operator && !req.Urgent {
		if !g.window.AllowedAt(g.nowFunc(), req.Location) {
			return Verdict{Decision: DecisionDefer, Reason: "deferred: quiet hours"}, nil
		}
	}

	return Verdict{Decision: DecisionAllow}, nil
}
