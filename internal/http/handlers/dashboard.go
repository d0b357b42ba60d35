package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/pkg/logging"
)

type dashboardLeads interface {
	ListRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]*leads.Lead, error)
	CountByIntent(ctx context.Context, tenantID uuid.UUID, intent string, since time.Time) (int, error)
}

type dashboardQueue interface {
	CountsByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int, error)
}

type dashboardTenants interface {
	GetByID(ctx context.Context, id string) (*tenants.Tenant, error)
	SetAIActive(ctx context.Context, id string, active bool) error
}

// DashboardConfig wires the read-only operator dashboard API.
type DashboardConfig struct {
	Leads   dashboardLeads
	Queue   dashboardQueue
	Tenants dashboardTenants
	Logger  *logging.Logger
}

// DashboardHandler exposes lead and queue state as JSON. Auth is handled
// by the router middleware.
type DashboardHandler struct {
	cfg DashboardConfig
}

func NewDashboardHandler(cfg DashboardConfig) *DashboardHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger = cfg.Logger.Component("dashboard")
	return &DashboardHandler{cfg: cfg}
}

// HandleRecentLeads serves GET /api/dashboard/leads?tenant_id=...&limit=...
func (h *DashboardHandler) HandleRecentLeads(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	recent, err := h.cfg.Leads.ListRecent(r.Context(), tenantID, limit)
	if err != nil {
		h.cfg.Logger.Error("list leads failed", "error", err, "tenant_id", tenantID)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if recent == nil {
		recent = []*leads.Lead{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"leads": recent, "count": len(recent)})
}

// HandleQueueStats serves GET /api/dashboard/queue?tenant_id=... with the
// outbound queue broken down by status. Omitting tenant_id aggregates all
// tenants.
func (h *DashboardHandler) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	tenantID := uuid.Nil
	if raw := r.URL.Query().Get("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant_id"})
			return
		}
		tenantID = id
	}

	counts, err := h.cfg.Queue.CountsByStatus(r.Context(), tenantID)
	if err != nil {
		h.cfg.Logger.Error("queue stats failed", "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"queue": counts})
}

// HandleTenant serves GET /api/dashboard/tenant?tenant_id=...
func (h *DashboardHandler) HandleTenant(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tenant_id")
	if raw == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id required"})
		return
	}
	tenant, err := h.cfg.Tenants.GetByID(r.Context(), raw)
	if errors.Is(err, tenants.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
		return
	}
	if err != nil {
		h.cfg.Logger.Error("tenant lookup failed", "error", err, "tenant_id", raw)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}

// HandleRevenue serves GET /api/dashboard/revenue?tenant_id=...&days=...
// The estimate is the emergency-intent lead count times the tenant's
// average job value.
func (h *DashboardHandler) HandleRevenue(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid days"})
			return
		}
		days = n
	}

	tenant, err := h.cfg.Tenants.GetByID(r.Context(), tenantID.String())
	if errors.Is(err, tenants.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
		return
	}
	if err != nil {
		h.cfg.Logger.Error("tenant lookup failed", "error", err, "tenant_id", tenantID)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	since := time.Now().AddDate(0, 0, -days)
	emergencies, err := h.cfg.Leads.CountByIntent(r.Context(), tenantID, leads.IntentEmergency, since)
	if err != nil {
		h.cfg.Logger.Error("count emergency leads failed", "error", err, "tenant_id", tenantID)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"tenant_id":         tenantID,
		"days":              days,
		"emergency_leads":   emergencies,
		"average_job_value": tenant.AverageJobValue,
		"estimated_revenue": float64(emergencies) * tenant.AverageJobValue,
	})
}

// HandleSetAIActive serves POST /api/dashboard/tenant/ai with a JSON
// body {"tenant_id": "...", "active": false}. The global pause for a
// tenant's automated replies.
func (h *DashboardHandler) HandleSetAIActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Active   bool   `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TenantID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id and active required"})
		return
	}
	if _, err := uuid.Parse(req.TenantID); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant_id"})
		return
	}

	err := h.cfg.Tenants.SetAIActive(r.Context(), req.TenantID, req.Active)
	if errors.Is(err, tenants.ErrNotFound) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
		return
	}
	if err != nil {
		h.cfg.Logger.Error("set ai_active failed", "error", err, "tenant_id", req.TenantID)
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	h.cfg.Logger.Info("ai_active updated", "tenant_id", req.TenantID, "active", req.Active)
	respondJSON(w, http.StatusOK, map[string]any{"tenant_id": req.TenantID, "ai_active": req.Active})
}

func (h *DashboardHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("tenant_id")
	if raw == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id required"})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant_id"})
		return uuid.Nil, false
	}
	return id, true
}
