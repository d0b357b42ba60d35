package classify

import (
	"regexp"
	"strings"
)

// Detector identifies STOP/HELP/START compliance keywords in inbound
// messages. The carriers require all three to be honored.
type Detector struct {
	stopRegex  *regexp.Regexp
	helpRegex  *regexp.Regexp
	startRegex *regexp.Regexp
}

// NewDetector returns a keyword detector with sane defaults.
func NewDetector() *Detector {
	return &Detector{
		stopRegex:  regexp.MustCompile(`(?i)^(?:please\s+)?(stop|stopall|unsubscribe|cancel|end|quit|opt[ -]?out|arrêt|arreter?)\b`),
		helpRegex:  regexp.MustCompile(`(?i)^(?:please\s+)?(help|info|aide)\b`),
		startRegex: regexp.MustCompile(`(?i)^(?:please\s+)?(start|unstop)\b`),
	}
}

// IsStop returns true when body leads with a STOP keyword.
func (d *Detector) IsStop(body string) bool {
	if d == nil || d.stopRegex == nil {
		return false
	}
	return d.stopRegex.MatchString(strings.TrimSpace(body))
}

// IsHelp returns true when body leads with a HELP keyword.
func (d *Detector) IsHelp(body string) bool {
	if d == nil || d.helpRegex == nil {
		return false
	}
	return d.helpRegex.MatchString(strings.TrimSpace(body))
}

// IsStart returns true when body leads with a resubscribe keyword.
func (d *Detector) IsStart(body string) bool {
	if d == nil || d.startRegex == nil {
		return false
	}
	return d.startRegex.MatchString(strings.TrimSpace(body))
}

// autoReplyMarkers are phrases autoresponders put in their messages.
// Replying to these would start a bot-to-bot loop.
var autoReplyMarkers = []string{
	"auto-reply",
	"auto reply",
	"automated response",
	"automatic reply",
	"out of office",
	"out of the office",
	"do not reply to this message",
	"this is an automated",
	"away from my phone",
}

// IsAutoReply reports whether the body looks machine-generated.
func IsAutoReply(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range autoReplyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
