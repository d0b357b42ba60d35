package safety

import (
	"fmt"
	"time"
)

// Window is the daily local-time window when lead-facing sends are
// allowed. Messages outside it are deferred, not failed.
type Window struct {
	StartMinutes int
	EndMinutes   int
}

// DefaultWindow allows sends between 08:00 and 21:00 local time.
var DefaultWindow = Window{StartMinutes: 8 * 60, EndMinutes: 21 * 60}

// ParseWindow builds a window from HH:MM strings.
func ParseWindow(start, end string) (Window, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("safety: parse window start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("safety: parse window end: %w", err)
	}
	return Window{StartMinutes: startMin, EndMinutes: endMin}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// AllowedAt reports whether the instant falls inside the window in the
// given location. A zero window allows everything.
func (w Window) AllowedAt(at time.Time, loc *time.Location) bool {
	if w.StartMinutes == w.EndMinutes {
		return true
	}
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	if w.StartMinutes < w.EndMinutes {
		return minutes >= w.StartMinutes && minutes < w.EndMinutes
	}
	// Window crosses midnight.
	return minutes >= w.StartMinutes || minutes < w.EndMinutes
}
