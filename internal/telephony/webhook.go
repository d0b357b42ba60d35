package telephony

import (
	"fmt"
	"net/http"
)

// VoiceWebhook carries the fields of an inbound voice webhook.
type VoiceWebhook struct {
	CallSID        string
	AccountSID     string
	From           string
	To             string
	CallStatus     string
	DialCallStatus string
	RecordingURL   string
	Digits         string
}

// ParseVoiceWebhook decodes a Twilio voice webhook form post.
func ParseVoiceWebhook(r *http.Request) (*VoiceWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("telephony: parse voice webhook: %w", err)
	}
	return &VoiceWebhook{
		CallSID:        r.FormValue("CallSid"),
		AccountSID:     r.FormValue("AccountSid"),
		From:           NormalizeE164(r.FormValue("From")),
		To:             NormalizeE164(r.FormValue("To")),
		CallStatus:     r.FormValue("CallStatus"),
		DialCallStatus: r.FormValue("DialCallStatus"),
		RecordingURL:   r.FormValue("RecordingUrl"),
		Digits:         r.FormValue("Digits"),
	}, nil
}

// SMSWebhook carries the fields of an inbound SMS webhook.
type SMSWebhook struct {
	MessageSID    string
	AccountSID    string
	From          string
	To            string
	Body          string
	MessageStatus string
	SmsStatus     string
}

// ParseSMSWebhook decodes a Twilio SMS webhook form post.
func ParseSMSWebhook(r *http.Request) (*SMSWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("telephony: parse sms webhook: %w", err)
	}
	return &SMSWebhook{
		MessageSID:    r.FormValue("MessageSid"),
		AccountSID:    r.FormValue("AccountSid"),
		From:          NormalizeE164(r.FormValue("From")),
		To:            NormalizeE164(r.FormValue("To")),
		Body:          r.FormValue("Body"),
		MessageStatus: r.FormValue("MessageStatus"),
		SmsStatus:     r.FormValue("SmsStatus"),
	}, nil
}
