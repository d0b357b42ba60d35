package tenants

import (
	"time"

	"github.com/google/uuid"
)

// DayWindow is an open/close window for one weekday, minutes since
// midnight in the tenant's zone. Open == Close means closed all day.
type DayWindow struct {
	OpenMinutes  int `json:"open"`
	CloseMinutes int `json:"close"`
}

// Hours maps weekday names (lowercase, e.g. "monday") to windows.
// Missing days are closed.
type Hours map[string]DayWindow

// Tenant is one business wired to a tracking number. Inbound calls and
// texts to the tracking number belong to this tenant; the operator
// number is where open-hours calls are bridged.
type Tenant struct {
	ID              uuid.UUID
	Slug            string
	BusinessName    string
	TrackingNumber  string
	OperatorNumber  string
	AlertNumber     string
	Timezone        string
	Hours           Hours
	Greeting        string
	VoicemailPrompt string
	// EmergencyMode adds a "press 1 for emergencies" bridge to
	// after-hours calls.
	EmergencyMode bool
	// AIActive pauses automated replies when false; inbound texts are
	// forwarded to the operator verbatim instead.
	AIActive        bool
	AverageJobValue float64
	ReviewLink      string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Location resolves the tenant's IANA timezone, falling back to UTC when
// the stored value is invalid.
func (t *Tenant) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AlertRecipient returns the number operator alerts go to, defaulting to
// the operator number when no dedicated alert number is configured.
func (t *Tenant) AlertRecipient() string {
	if t.AlertNumber != "" {
		return t.AlertNumber
	}
	return t.OperatorNumber
}
