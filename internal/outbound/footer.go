package outbound

import "strings"

// ComplianceFooter is appended to the first message of every thread.
const ComplianceFooter = "\n\nReply STOP to unsubscribe."

// shortenerDomains are URL shorteners carriers commonly filter.
var shortenerDomains = []string{
	"bit.ly",
	"tinyurl.com",
	"goo.gl",
	"t.co",
	"is.gd",
	"buff.ly",
}

// EnsureFooter appends the compliance footer when the body does not
// already carry an opt-out notice. Returns the final body and whether it
// changed.
func EnsureFooter(body string) (string, bool) {
	lower := strings.ToLower(body)
	if strings.Contains(lower, "reply stop") || strings.Contains(lower, "text stop") {
		return body, false
	}
	return body + ComplianceFooter, true
}

// ShortenerDomain returns the first known URL-shortener domain found in
// the body, or "" when none. Callers log a carrier-filtering warning but
// still send.
func ShortenerDomain(body string) string {
	lower := strings.ToLower(body)
	for _, domain := range shortenerDomains {
		if strings.Contains(lower, domain) {
			return domain
		}
	}
	return ""
}
