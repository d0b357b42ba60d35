package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/tenants"
)

type fakeDashboardLeads struct {
	leads       []*leads.Lead
	emergencies int
}

func (f *fakeDashboardLeads) ListRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]*leads.Lead, error) {
	return f.leads, nil
}

func (f *fakeDashboardLeads) CountByIntent(ctx context.Context, tenantID uuid.UUID, intent string, since time.Time) (int, error) {
	return f.emergencies, nil
}

type fakeDashboardQueue struct {
	counts map[string]int
}

func (f *fakeDashboardQueue) CountsByStatus(ctx context.Context, tenantID uuid.UUID) (map[string]int, error) {
	return f.counts, nil
}

type fakeDashboardTenants struct {
	tenant  *tenants.Tenant
	toggled map[string]bool
}

func (f *fakeDashboardTenants) GetByID(ctx context.Context, id string) (*tenants.Tenant, error) {
	if f.tenant != nil && f.tenant.ID.String() == id {
		return f.tenant, nil
	}
	return nil, tenants.ErrNotFound
}

func (f *fakeDashboardTenants) SetAIActive(ctx context.Context, id string, active bool) error {
	if f.tenant == nil || f.tenant.ID.String() != id {
		return tenants.ErrNotFound
	}
	if f.toggled == nil {
		f.toggled = map[string]bool{}
	}
	f.toggled[id] = active
	return nil
}

func TestDashboardRecentLeads(t *testing.T) {
	tenantID := uuid.New()
	h := NewDashboardHandler(DashboardConfig{
		Leads: &fakeDashboardLeads{leads: []*leads.Lead{
			{TenantID: tenantID, Phone: "+15551234567", Status: leads.StatusReplied},
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/leads?tenant_id="+tenantID.String(), nil)
	rec := httptest.NewRecorder()
	h.HandleRecentLeads(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "+15551234567")
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestDashboardRecentLeadsRequiresTenant(t *testing.T) {
	h := NewDashboardHandler(DashboardConfig{Leads: &fakeDashboardLeads{}})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/leads", nil)
	rec := httptest.NewRecorder()
	h.HandleRecentLeads(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardRecentLeadsRejectsBadLimit(t *testing.T) {
	h := NewDashboardHandler(DashboardConfig{Leads: &fakeDashboardLeads{}})

	req := httptest.NewRequest(http.MethodGet,
		"/api/dashboard/leads?tenant_id="+uuid.NewString()+"&limit=-3", nil)
	rec := httptest.NewRecorder()
	h.HandleRecentLeads(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardQueueStats(t *testing.T) {
	h := NewDashboardHandler(DashboardConfig{
		Queue: &fakeDashboardQueue{counts: map[string]int{"pending": 4, "dead": 1}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/queue", nil)
	rec := httptest.NewRecorder()
	h.HandleQueueStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":4`)
	assert.Contains(t, rec.Body.String(), `"dead":1`)
}

func TestDashboardTenantNotFound(t *testing.T) {
	h := NewDashboardHandler(DashboardConfig{Tenants: &fakeDashboardTenants{}})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/tenant?tenant_id="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	h.HandleTenant(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardRevenueEstimate(t *testing.T) {
	tenant := sampleTenant()
	tenant.AverageJobValue = 450
	h := NewDashboardHandler(DashboardConfig{
		Leads:   &fakeDashboardLeads{emergencies: 3},
		Tenants: &fakeDashboardTenants{tenant: tenant},
	})

	req := httptest.NewRequest(http.MethodGet,
		"/api/dashboard/revenue?tenant_id="+tenant.ID.String()+"&days=7", nil)
	rec := httptest.NewRecorder()
	h.HandleRevenue(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"emergency_leads":3`)
	assert.Contains(t, rec.Body.String(), `"estimated_revenue":1350`)
	assert.Contains(t, rec.Body.String(), `"days":7`)
}

func TestDashboardRevenueRejectsBadDays(t *testing.T) {
	h := NewDashboardHandler(DashboardConfig{Leads: &fakeDashboardLeads{}})

	req := httptest.NewRequest(http.MethodGet,
		"/api/dashboard/revenue?tenant_id="+uuid.NewString()+"&days=0", nil)
	rec := httptest.NewRecorder()
	h.HandleRevenue(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardSetAIActive(t *testing.T) {
	tenant := sampleTenant()
	store := &fakeDashboardTenants{tenant: tenant}
	h := NewDashboardHandler(DashboardConfig{Tenants: store})

	body := `{"tenant_id":"` + tenant.ID.String() + `","active":false}`
	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/tenant/ai", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleSetAIActive(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	active, ok := store.toggled[tenant.ID.String()]
	require.True(t, ok, "expected the toggle recorded")
	assert.False(t, active)
}

func TestDashboardSetAIActiveRejectsBadBody(t *testing.T) {
	h := NewDashboardHandler(DashboardConfig{Tenants: &fakeDashboardTenants{}})

	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/tenant/ai", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.HandleSetAIActive(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
