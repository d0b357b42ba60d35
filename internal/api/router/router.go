// Package router assembles the HTTP surface: provider webhooks, the
// opt-out page, the dashboard API, and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leadline/leadline/internal/http/handlers"
	httpmiddleware "github.com/leadline/leadline/internal/http/middleware"
	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger      *logging.Logger
	Voice       *handlers.VoiceHandler
	SMS         *handlers.SMSHandler
	Unsubscribe *handlers.UnsubscribeHandler
	Health      *handlers.HealthHandler
	Dashboard   *handlers.DashboardHandler

	MetricsHandler http.Handler

	// Webhook signature validation.
	TwilioAuthToken    string
	PublicBaseURL      string
	SkipSignatureCheck bool

	DashboardJWTSecret string
	CORSAllowedOrigins []string

	// Per-IP limits for the public surface.
	RateLimitPerSec float64
	RateLimitBurst  int

	// KillSwitch drops all inbound webhook processing while still
	// answering the provider with a valid empty response.
	KillSwitch bool
}

// New builds the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSec > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}

	// Provider webhooks, behind signature validation.
	r.Group(func(hooks chi.Router) {
		if cfg.KillSwitch {
			hooks.Use(killSwitch(cfg.Logger))
		}
		hooks.Use(httpmiddleware.TwilioSignature(
			cfg.TwilioAuthToken, cfg.PublicBaseURL, cfg.SkipSignatureCheck, cfg.Logger))
		hooks.Post("/voice", cfg.Voice.HandleInbound)
		hooks.Post("/voice/status", cfg.Voice.HandleDialStatus)
		hooks.Post("/voice/voicemail", cfg.Voice.HandleVoicemail)
		hooks.Post("/sms", cfg.SMS.HandleInbound)
		hooks.Post("/sms/status", cfg.SMS.HandleStatus)
	})

	// Public endpoints.
	if cfg.Unsubscribe != nil {
		r.Get("/unsubscribe", cfg.Unsubscribe.Handle)
	}
	if cfg.Health != nil {
		r.Get("/health", cfg.Health.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Operator dashboard API.
	if cfg.Dashboard != nil {
		r.Route("/api/dashboard", func(api chi.Router) {
			api.Use(httpmiddleware.DashboardJWT(cfg.DashboardJWTSecret))
			api.Get("/leads", cfg.Dashboard.HandleRecentLeads)
			api.Get("/queue", cfg.Dashboard.HandleQueueStats)
			api.Get("/tenant", cfg.Dashboard.HandleTenant)
			api.Get("/revenue", cfg.Dashboard.HandleRevenue)
			api.Post("/tenant/ai", cfg.Dashboard.HandleSetAIActive)
		})
	}

	return r
}

// killSwitch swallows every inbound webhook with a valid empty TwiML
// response so the provider stops retrying while the engine is paused.
func killSwitch(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger != nil {
				logger.Warn("kill switch on, dropping webhook", "path", r.URL.Path)
			}
			w.Header().Set("Content-Type", "text/xml; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(telephony.EmptyTwiML()))
		})
	}
}
