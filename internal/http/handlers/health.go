package handlers

import (
	"context"
	"net/http"
	"time"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and dependency health, plus the
// operational flags an on-call engineer checks first.
type HealthHandler struct {
	db         pinger
	cache      pinger
	killSwitch bool
	telephony  bool
}

func NewHealthHandler(db, cache pinger) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// WithFlags records whether the inbound kill switch is on and whether
// telephony credentials are configured.
func (h *HealthHandler) WithFlags(killSwitch, telephonyConfigured bool) *HealthHandler {
	h.killSwitch = killSwitch
	h.telephony = telephonyConfigured
	return h
}

// Handle serves GET /health. Degraded dependencies turn the response 503
// so the load balancer rotates the instance out.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	respondJSON(w, status, map[string]any{
		"status":               state,
		"checks":               checks,
		"kill_switch":          h.killSwitch,
		"telephony_configured": h.telephony,
	})
}
