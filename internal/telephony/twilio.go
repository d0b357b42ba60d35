package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadline/leadline/pkg/logging"
)

// TwilioGateway posts SMS messages and carrier lookups using Twilio's
// REST APIs.
type TwilioGateway struct {
	accountSID    string
	authToken     string
	baseURL       string
	lookupBaseURL string
	httpClient    *http.Client
	logger        *logging.Logger
}

func NewTwilioGateway(accountSID, authToken string, logger *logging.Logger) *TwilioGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioGateway{
		accountSID:    accountSID,
		authToken:     authToken,
		baseURL:       "https://api.twilio.com",
		lookupBaseURL: "https://lookups.twilio.com",
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

// WithBaseURL points the client at a different API host, for tests.
func (g *TwilioGateway) WithBaseURL(base string) *TwilioGateway {
	g.baseURL = strings.TrimRight(base, "/")
	return g
}

// SendSMS makes a single delivery attempt and returns the provider
// message SID on accept.
func (g *TwilioGateway) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	if g.accountSID == "" || g.authToken == "" {
		return "", errors.New("telephony: twilio credentials missing")
	}
	if to == "" || from == "" {
		return "", errors.New("telephony: from and to required")
	}
	if strings.TrimSpace(body) == "" {
		return "", errors.New("telephony: body required")
	}

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", fmt.Errorf("telephony: build request: %w", err)
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("telephony: send: %w", err)
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SendError{StatusCode: resp.StatusCode, Detail: formatAPIError(respBody)}
	}

	var parsed struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("telephony: decode response: %w", err)
	}
	g.logger.Info("sms accepted by provider", "to", to, "sid", parsed.SID, "provider_status", parsed.Status)
	return parsed.SID, nil
}

type twilioAPIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func formatAPIError(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "empty response"
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("code %d: %s", parsed.Code, parsed.Message)
		}
		return parsed.Message
	}
	return trimmed
}
