// Package telephony wraps the SMS/voice provider: the REST client for
// outbound sends, webhook signature validation, TwiML rendering, and
// status mapping for delivery receipts.
package telephony

import (
	"context"
	"errors"
	"fmt"
)

// Gateway sends SMS through the provider. The queue dispatcher owns all
// retrying, so implementations make exactly one attempt per call.
type Gateway interface {
	SendSMS(ctx context.Context, from, to, body string) (sid string, err error)
}

// SendError carries the provider response status so callers can decide
// between retrying and dead-lettering.
type SendError struct {
	StatusCode int
	Detail     string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("telephony: send failed: status %d: %s", e.StatusCode, e.Detail)
}

// Permanent reports whether retrying is pointless: a non-rate-limit 4xx
// (bad number, blocked recipient) will fail the same way every time.
func (e *SendError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != 429
}

// IsPermanent reports whether err is a permanent send failure.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent()
}
