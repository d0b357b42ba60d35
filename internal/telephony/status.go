package telephony

import "strings"

// Dial outcomes that count as a missed call. "completed" means the
// operator answered; everything else sends the caller to the SMS flow.
// Answering-machine detection outcomes count too.
var missedDialStatuses = map[string]bool{
	"no-answer":     true,
	"busy":          true,
	"failed":        true,
	"canceled":      true,
	"machine_start": true,
}

// IsMissedDial reports whether a dial status callback represents a
// missed call.
func IsMissedDial(dialStatus string) bool {
	return missedDialStatuses[dialStatus] || strings.HasPrefix(dialStatus, "machine_end_")
}

// IsDeliveryEcho reports whether an inbound SMS webhook is really a
// delivery-lifecycle echo for one of our own sends. Replying to these
// would loop.
func IsDeliveryEcho(smsStatus string) bool {
	switch smsStatus {
	case "queued", "accepted", "sending", "sent", "delivered", "undelivered", "failed":
		return true
	}
	return false
}

// MapMessageStatus translates provider delivery-receipt statuses into
// queue statuses. Unknown statuses map to "", meaning ignore.
func MapMessageStatus(providerStatus string) string {
	switch providerStatus {
	case "delivered":
		return "delivered"
	case "undelivered", "failed":
		return "failed"
	case "sent", "queued", "accepted", "sending":
		return "sent"
	default:
		return ""
	}
}
