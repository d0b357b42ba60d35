// Package classify scores inbound lead messages so genuinely urgent jobs
// (burst pipes, gas smells) reach the operator immediately instead of
// waiting out the alert debounce window.
package classify

import "strings"

// Urgency levels for inbound messages.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// urgentThreshold is the minimum weighted score for a high verdict.
const urgentThreshold = 3

// Signals match as substrings of the lowercased body, so "flood" also
// covers "flooding" and "flooded".
var highSignals = map[string]int{
	"emergency":    3,
	"burst":        3,
	"flood":        3,
	"gas leak":     3,
	"smell gas":    3,
	"sewage":       3,
	"no heat":      3,
	"no hot water": 3,
	"overflow":     3,
}

var mediumSignals = map[string]int{
	"leak":       2,
	"urgent":     2,
	"asap":       2,
	"right away": 2,
	"clogged":    1,
	"backed up":  1,
	"today":      1,
	"soon":       1,
}

// negations force a low verdict no matter what else the message says.
var negations = []string{
	"not urgent",
	"no rush",
	"no hurry",
	"whenever",
	"not an emergency",
}

// Urgency scores the message body. Word matching is substring-based over
// the lowercased body; multi-word signals match naturally.
func Urgency(body string) string {
	lower := strings.ToLower(body)
	for _, neg := range negations {
		if strings.Contains(lower, neg) {
			return UrgencyLow
		}
	}

	score := 0
	for signal, weight := range highSignals {
		if strings.Contains(lower, signal) {
			score += weight
		}
	}
	for signal, weight := range mediumSignals {
		if strings.Contains(lower, signal) {
			score += weight
		}
	}

	switch {
	case score >= urgentThreshold:
		return UrgencyHigh
	case score > 0:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// IsUrgent is a convenience wrapper for the high verdict.
func IsUrgent(body string) bool {
	return Urgency(body) == UrgencyHigh
}
