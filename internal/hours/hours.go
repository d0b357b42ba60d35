// Package hours decides whether a tenant is open at a given moment, in
// the tenant's own timezone.
package hours

import (
	"strings"
	"time"

	"github.com/leadline/leadline/internal/tenants"
)

// Schedule evaluates a tenant's weekly open/close windows.
type Schedule struct {
	windows tenants.Hours
	loc     *time.Location
}

// FromTenant builds a schedule from the tenant's configured windows and
// timezone. A tenant with no windows is treated as always closed, which
// routes every call to voicemail.
func FromTenant(t *tenants.Tenant) Schedule {
	return Schedule{windows: t.Hours, loc: t.Location()}
}

// New builds a schedule directly, for callers outside tenant context.
func New(windows tenants.Hours, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{windows: windows, loc: loc}
}

func weekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// OpenAt reports whether the business is open at the given instant.
// Windows with open == close are closed days. A window whose close is
// before its open crosses midnight and spills into the next day.
func (s Schedule) OpenAt(at time.Time) bool {
	local := at.In(s.loc)
	minutes := local.Hour()*60 + local.Minute()

	if w, ok := s.windows[weekdayKey(local.Weekday())]; ok && w.OpenMinutes != w.CloseMinutes {
		if w.OpenMinutes < w.CloseMinutes {
			if minutes >= w.OpenMinutes && minutes < w.CloseMinutes {
				return true
			}
		} else if minutes >= w.OpenMinutes {
			return true
		}
	}

	// A midnight-crossing window on the previous day covers the early
	// minutes of today.
	prev := weekdayKey(local.AddDate(0, 0, -1).Weekday())
	if w, ok := s.windows[prev]; ok && w.OpenMinutes > w.CloseMinutes {
		if minutes < w.CloseMinutes {
			return true
		}
	}
	return false
}
