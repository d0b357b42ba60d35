package outbound

import (
	"time"

	"github.com/google/uuid"
)

// Queue row statuses. A row moves pending -> processing -> sent ->
// delivered, or exits through one of the terminal states.
const (
	StatusPending         = "pending"
	StatusProcessing      = "processing"
	StatusSent            = "sent"
	StatusDelivered       = "delivered"
	StatusFailed          = "failed"
	StatusFailedOptOut    = "failed_optout"
	StatusFailedSafety    = "failed_safety"
	StatusFailedPermanent = "failed_permanent"
	StatusCancelled       = "cancelled"
)

// EnqueueOutcome reports what Enqueue did with the message.
type EnqueueOutcome string

const (
	OutcomeQueued       EnqueueOutcome = "queued"
	OutcomeDeduplicated EnqueueOutcome = "deduplicated"
	OutcomeRejected     EnqueueOutcome = "rejected"
)

// Message is one queued outbound SMS. Urgent rows skip quiet-hours
// deferral at dispatch time.
type Message struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	To          string
	From        string
	Body        string
	Status      string
	Urgent      bool
	Attempts    int
	ExternalID  string
	ProviderSID string
	LastError   string
	ScheduledAt time.Time
	LockedAt    *time.Time
	SentAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
