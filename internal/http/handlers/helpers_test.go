package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/tenants"
)

func postForm(t *testing.T, h http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

type fakeGuard struct {
	processed map[string]bool
	failCheck bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{processed: map[string]bool{}}
}

func (f *fakeGuard) AlreadyProcessed(ctx context.Context, key string) (bool, error) {
	if f.failCheck {
		return false, context.DeadlineExceeded
	}
	return f.processed[key], nil
}

func (f *fakeGuard) MarkProcessed(ctx context.Context, key, eventType string) (bool, error) {
	if f.processed[key] {
		return false, nil
	}
	f.processed[key] = true
	return true, nil
}

type fakeDirectory struct {
	byTracking map[string]*tenants.Tenant
	byOperator map[string]*tenants.Tenant
}

func (f *fakeDirectory) ResolveByTrackingNumber(ctx context.Context, number string) (*tenants.Tenant, error) {
	if t, ok := f.byTracking[number]; ok {
		return t, nil
	}
	return nil, tenants.ErrNotFound
}

func (f *fakeDirectory) ResolveByOperatorNumber(ctx context.Context, number string) (*tenants.Tenant, error) {
	if t, ok := f.byOperator[number]; ok {
		return t, nil
	}
	return nil, tenants.ErrNotFound
}

type fakeLeads struct {
	touched    []string
	optedOut   []string
	cleared    []string
	replied    []string
	intents    []string
	voicemails []string
}

func (f *fakeLeads) Touch(ctx context.Context, tenantID uuid.UUID, phone, source, message string) (*leads.Lead, error) {
	f.touched = append(f.touched, phone+"|"+source)
	return &leads.Lead{TenantID: tenantID, Phone: phone, Source: source}, nil
}

func (f *fakeLeads) MarkOptedOut(ctx context.Context, phone string) error {
	f.optedOut = append(f.optedOut, phone)
	return nil
}

func (f *fakeLeads) ClearOptOut(ctx context.Context, phone string) error {
	f.cleared = append(f.cleared, phone)
	return nil
}

func (f *fakeLeads) MarkReplied(ctx context.Context, tenantID uuid.UUID, phone string) error {
	f.replied = append(f.replied, phone)
	return nil
}

func (f *fakeLeads) SetIntent(ctx context.Context, tenantID uuid.UUID, phone, intent string) error {
	f.intents = append(f.intents, phone+"|"+intent)
	return nil
}

func (f *fakeLeads) AttachVoicemail(ctx context.Context, tenantID uuid.UUID, phone, url, transcript string) error {
	f.voicemails = append(f.voicemails, phone+"|"+url)
	return nil
}

type fakeConsent struct {
	implied []string
	express []string
	revoked []string
	failAll bool
}

func (f *fakeConsent) RecordImplied(ctx context.Context, q consent.Querier, tenantID uuid.UUID, phone, source string) error {
	if f.failAll {
		return context.DeadlineExceeded
	}
	f.implied = append(f.implied, phone+"|"+source)
	return nil
}

func (f *fakeConsent) RecordExpress(ctx context.Context, q consent.Querier, tenantID uuid.UUID, phone, source string) error {
	if f.failAll {
		return context.DeadlineExceeded
	}
	f.express = append(f.express, phone+"|"+source)
	return nil
}

func (f *fakeConsent) Revoke(ctx context.Context, q consent.Querier, phone, source string) error {
	if f.failAll {
		return context.DeadlineExceeded
	}
	f.revoked = append(f.revoked, phone+"|"+source)
	return nil
}

type fakeSendQueue struct {
	enqueued []*outbound.Message
	canceled []string
	statuses map[string]string
	outcome  outbound.EnqueueOutcome
}

func (f *fakeSendQueue) Enqueue(ctx context.Context, q outbound.Querier, m *outbound.Message) (outbound.EnqueueOutcome, error) {
	f.enqueued = append(f.enqueued, m)
	if f.outcome != "" {
		return f.outcome, nil
	}
	return outbound.OutcomeQueued, nil
}

func (f *fakeSendQueue) CancelPendingForPhone(ctx context.Context, q outbound.Querier, phone string) (int64, error) {
	f.canceled = append(f.canceled, phone)
	return 1, nil
}

func (f *fakeSendQueue) UpdateStatusByProviderSID(ctx context.Context, sid, status, lastError string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[sid] = status
	return nil
}

type fakeNudges struct {
	scheduled []string
	canceled  []string
}

func (f *fakeNudges) Schedule(ctx context.Context, tenant *tenants.Tenant, phone string) error {
	f.scheduled = append(f.scheduled, phone)
	return nil
}

func (f *fakeNudges) Cancel(ctx context.Context, phone string) error {
	f.canceled = append(f.canceled, phone)
	return nil
}

type fakeAlerts struct {
	buffered  []string
	expedited []string
}

func (f *fakeAlerts) Buffer(ctx context.Context, tenantID uuid.UUID, phone, text string) error {
	f.buffered = append(f.buffered, phone+"|"+text)
	return nil
}

func (f *fakeAlerts) Expedite(ctx context.Context, tenantID uuid.UUID, phone string) error {
	f.expedited = append(f.expedited, phone)
	return nil
}

type fakeOptOutCache struct {
	marked  []string
	cleared []string
}

func (f *fakeOptOutCache) MarkOptedOut(ctx context.Context, phone string) error {
	f.marked = append(f.marked, phone)
	return nil
}

func (f *fakeOptOutCache) ClearOptOut(ctx context.Context, phone string) error {
	f.cleared = append(f.cleared, phone)
	return nil
}

type fakeReplay struct {
	deferred []string
	reject   bool
}

func (f *fakeReplay) Defer(handler http.HandlerFunc, path string, form url.Values) bool {
	if f.reject {
		return false
	}
	f.deferred = append(f.deferred, path)
	return true
}

func sampleTenant() *tenants.Tenant {
	return &tenants.Tenant{
		ID:             uuid.New(),
		Slug:           "ace-plumbing",
		BusinessName:   "Ace Plumbing",
		TrackingNumber: "+15550001111",
		OperatorNumber: "+15550002222",
		Timezone:       "UTC",
		Active:         true,
		AIActive:       true,
		ReviewLink:     "https://g.page/r/ace-plumbing/review",
	}
}
