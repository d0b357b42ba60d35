package middleware

import (
	"net/http"

	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/pkg/logging"
)

// TwilioSignature rejects webhook posts whose X-Twilio-Signature does not
// match the request. The signature covers the full public URL, so the
// handler must be mounted behind the same base URL the provider calls.
// skip disables the check for local development.
func TwilioSignature(authToken, publicBaseURL string, skip bool, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip {
				next.ServeHTTP(w, r)
				return
			}
			webhookURL := publicBaseURL + r.URL.RequestURI()
			if !telephony.ValidateSignature(r, authToken, webhookURL) {
				logger.Warn("webhook signature rejected",
					"path", r.URL.Path, "remote_ip", r.RemoteAddr)
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
