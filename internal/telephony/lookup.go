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
)

// Line types reported by the carrier lookup.
const (
	LineTypeMobile   = "mobile"
	LineTypeLandline = "landline"
	LineTypeUnknown  = "unknown"
)

// WithLookupBaseURL points the lookup client at a different host, for
// tests.
func (g *TwilioGateway) WithLookupBaseURL(base string) *TwilioGateway {
	g.lookupBaseURL = strings.TrimRight(base, "/")
	return g
}

// LookupLineType asks the carrier lookup API whether the number is a
// mobile or a landline. Unknown (with no error) covers carriers that
// don't report a type; callers treat unknown as textable.
func (g *TwilioGateway) LookupLineType(ctx context.Context, phone string) (string, error) {
	if g.accountSID == "" || g.authToken == "" {
		return LineTypeUnknown, errors.New("telephony: twilio credentials missing")
	}
	if phone == "" {
		return LineTypeUnknown, errors.New("telephony: phone required")
	}

	endpoint := fmt.Sprintf("%s/v2/PhoneNumbers/%s?Fields=line_type_intelligence",
		g.lookupBaseURL, url.PathEscape(phone))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return LineTypeUnknown, fmt.Errorf("telephony: build lookup request: %w", err)
	}
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return LineTypeUnknown, fmt.Errorf("telephony: lookup: %w", err)
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return LineTypeUnknown, fmt.Errorf("telephony: lookup status %d: %s", resp.StatusCode, formatAPIError(respBody))
	}

	var parsed struct {
		LineTypeIntelligence struct {
			Type string `json:"type"`
		} `json:"line_type_intelligence"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return LineTypeUnknown, fmt.Errorf("telephony: decode lookup: %w", err)
	}

	switch parsed.LineTypeIntelligence.Type {
	case "landline", "fixedVoip":
		return LineTypeLandline, nil
	case "mobile", "nonFixedVoip", "voip":
		return LineTypeMobile, nil
	default:
		return LineTypeUnknown, nil
	}
}
