// Package handlers holds the HTTP handlers for the provider webhooks and
// the operator-facing endpoints. Webhook handlers answer 200 with TwiML
// even when a lookup comes up empty; only infrastructure failures get a
// 5xx so the provider retries.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/tenants"
)

// tenantDirectory resolves which business owns an inbound call or text.
type tenantDirectory interface {
	ResolveByTrackingNumber(ctx context.Context, number string) (*tenants.Tenant, error)
	ResolveByOperatorNumber(ctx context.Context, number string) (*tenants.Tenant, error)
}

// eventGuard is the webhook idempotency barrier.
type eventGuard interface {
	AlreadyProcessed(ctx context.Context, key string) (bool, error)
	MarkProcessed(ctx context.Context, key, eventType string) (bool, error)
}

// messageQueue enqueues outbound texts for the dispatcher.
type messageQueue interface {
	Enqueue(ctx context.Context, q outbound.Querier, m *outbound.Message) (outbound.EnqueueOutcome, error)
}

// replayDeferrer parks a webhook delivery for later replay when a
// backing store is unavailable.
type replayDeferrer interface {
	Defer(handler http.HandlerFunc, path string, form url.Values) bool
}

// alertBuffer collects lead activity for the debounced operator alert.
type alertBuffer interface {
	Buffer(ctx context.Context, tenantID uuid.UUID, phone, text string) error
}

func respondTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
