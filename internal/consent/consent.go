// Package consent keeps the append-only consent ledger. Rows are never
// updated or deleted; the effective state is derived from the latest
// entries. A revocation dominates until the phone explicitly
// resubscribes, which lands as a newer express grant.
package consent

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Consent kinds.
const (
	KindImplied = "implied"
	KindExpress = "express"
	KindRevoked = "revoked"
)

// State is the effective consent state for a phone within a tenant.
type State string

const (
	StateNone    State = "none"
	StateImplied State = "implied"
	StateExpress State = "express"
	StateRevoked State = "revoked"
)

// ErrOptedOut is returned by callers that treat a revoked state as a
// hard failure.
var ErrOptedOut = errors.New("consent: phone has opted out")

// Record is one ledger entry.
type Record struct {
	ID         uuid.UUID
	Phone      string
	TenantID   uuid.UUID
	Kind       string
	Source     string
	CapturedAt time.Time
	ExpiresAt  *time.Time
}

// Allows reports whether the state permits outbound messaging.
func (s State) Allows() bool {
	return s == StateImplied || s == StateExpress
}
