package leads

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLeadNotFound is returned when a lead lookup misses.
var ErrLeadNotFound = errors.New("leads: not found")

// Lead statuses. Automatic transitions stop at booked: once the operator
// wins the job, only the dashboard may move the lead.
const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusReplied   = "replied"
	StatusBooked    = "booked"
	StatusLost      = "lost"
)

// Lead intents, set by the urgency classifier.
const (
	IntentEmergency = "emergency"
	IntentService   = "service"
	IntentInquiry   = "inquiry"
)

// Lead sources.
const (
	SourceMissedCall = "missed_call"
	SourceSMS        = "sms"
	SourceVoicemail  = "voicemail"
)

// Lead is one caller's record with a tenant, keyed by (tenant, phone).
type Lead struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Phone          string
	Source         string
	Status         string
	Intent         string
	OptOut         bool
	LastMessage    string
	VoicemailURL   string
	VoicemailText  string
	ContactCount   int
	FirstContactAt time.Time
	LastContactAt  time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
