package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/alerts"
	"github.com/leadline/leadline/internal/classify"
	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/pkg/logging"
)

type optOutStore interface {
	Revoke(ctx context.Context, q consent.Querier, phone, source string) error
	RecordExpress(ctx context.Context, q consent.Querier, tenantID uuid.UUID, phone, source string) error
	RecordImplied(ctx context.Context, q consent.Querier, tenantID uuid.UUID, phone, source string) error
}

type smsQueue interface {
	Enqueue(ctx context.Context, q outbound.Querier, m *outbound.Message) (outbound.EnqueueOutcome, error)
	CancelPendingForPhone(ctx context.Context, q outbound.Querier, phone string) (int64, error)
	UpdateStatusByProviderSID(ctx context.Context, sid, status, lastError string) error
}

type smsLeadStore interface {
	Touch(ctx context.Context, tenantID uuid.UUID, phone, source, message string) (*leads.Lead, error)
	MarkOptedOut(ctx context.Context, phone string) error
	ClearOptOut(ctx context.Context, phone string) error
	MarkReplied(ctx context.Context, tenantID uuid.UUID, phone string) error
	SetIntent(ctx context.Context, tenantID uuid.UUID, phone, intent string) error
}

type nudgeCanceler interface {
	Schedule(ctx context.Context, tenant *tenants.Tenant, phone string) error
	Cancel(ctx context.Context, phone string) error
}

type smsAlertBuffer interface {
	Buffer(ctx context.Context, tenantID uuid.UUID, phone, text string) error
	Expedite(ctx context.Context, tenantID uuid.UUID, phone string) error
}

type optOutCache interface {
	MarkOptedOut(ctx context.Context, phone string) error
	ClearOptOut(ctx context.Context, phone string) error
}

type inboundLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SMSConfig wires the SMS webhook handler.
type SMSConfig struct {
	Tenants  tenantDirectory
	Guard    eventGuard
	Leads    smsLeadStore
	Consent  optOutStore
	Queue    smsQueue
	Nudges   nudgeCanceler
	Alerts   smsAlertBuffer
	OptOuts  optOutCache
	Limiter  inboundLimiter
	Replay   replayDeferrer
	Detector *classify.Detector
	Logger   *logging.Logger
	Metrics  *metrics.EngineMetrics

	StopReply  string
	HelpReply  string
	StartReply string
}

// SMSHandler processes inbound texts in a fixed priority order: delivery
// echoes, compliance keywords (STOP, auto-reply, HELP, START), the AI
// kill-switch, review feedback, then the lead pipeline with urgency
// classification.
type SMSHandler struct {
	cfg SMSConfig
}

func NewSMSHandler(cfg SMSConfig) *SMSHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger = cfg.Logger.Component("sms")
	if cfg.Detector == nil {
		cfg.Detector = classify.NewDetector()
	}
	if cfg.StopReply == "" {
		cfg.StopReply = "You have been unsubscribed and will receive no further messages."
	}
	if cfg.HelpReply == "" {
		cfg.HelpReply = "Reply STOP to unsubscribe. Msg & data rates may apply."
	}
	if cfg.StartReply == "" {
		cfg.StartReply = "You are resubscribed and will receive messages again. Reply STOP to opt out."
	}
	return &SMSHandler{cfg: cfg}
}

// HandleInbound serves POST /sms.
func (h *SMSHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hook, err := telephony.ParseSMSWebhook(r)
	if err != nil || hook.MessageSID == "" {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	// A delivery-lifecycle echo for one of our own sends; replying would
	// start a loop with ourselves.
	if telephony.IsDeliveryEcho(hook.SmsStatus) {
		h.cfg.Metrics.ObserveInbound("sms", "status_echo")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	processed, err := h.cfg.Guard.AlreadyProcessed(ctx, hook.MessageSID)
	if err != nil {
		h.cfg.Logger.Error("idempotency check failed", "error", err, "message_sid", hook.MessageSID)
		h.deferOrFail(w, r)
		return
	}
	if processed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	tenant, err := h.cfg.Tenants.ResolveByTrackingNumber(ctx, hook.To)
	if errors.Is(err, tenants.ErrNotFound) {
		h.cfg.Logger.Warn("text to unknown tracking number", "to", hook.To)
		h.cfg.Metrics.ObserveInbound("sms", "unknown_tenant")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	if err != nil {
		h.cfg.Logger.Error("tenant lookup failed", "error", err, "to", hook.To)
		h.deferOrFail(w, r)
		return
	}

	if h.cfg.Limiter != nil {
		allowed, err := h.cfg.Limiter.Allow(ctx, "sms:"+hook.From)
		if err != nil {
			h.cfg.Logger.Warn("rate limit check failed", "error", err, "phone", hook.From)
		}
		if !allowed {
			h.cfg.Logger.Warn("inbound rate limited", "phone", hook.From)
			h.cfg.Metrics.ObserveInbound("sms", "rate_limited")
			_, _ = h.cfg.Guard.MarkProcessed(ctx, hook.MessageSID, "sms.inbound")
			respondTwiML(w, telephony.EmptyTwiML())
			return
		}
	}

	// STOP and START claim the event key only after their ledger write
	// lands, so a failed write stays replayable.
	if h.cfg.Detector.IsStop(hook.Body) {
		if err := h.handleStop(ctx, hook.From); err != nil {
			h.cfg.Logger.Error("opt-out failed", "error", err, "phone", hook.From)
			h.deferOrFail(w, r)
			return
		}
		if _, err := h.cfg.Guard.MarkProcessed(ctx, hook.MessageSID, "sms.stop"); err != nil {
			h.cfg.Logger.Error("mark processed failed", "error", err, "message_sid", hook.MessageSID)
		}
		h.cfg.Metrics.ObserveInbound("sms", "stop")
		respondTwiML(w, telephony.MessageTwiML(h.cfg.StopReply))
		return
	}

	if classify.IsAutoReply(hook.Body) {
		_, _ = h.cfg.Guard.MarkProcessed(ctx, hook.MessageSID, "sms.auto_reply")
		h.cfg.Logger.Info("dropping auto-reply", "phone", hook.From)
		h.cfg.Metrics.ObserveInbound("sms", "auto_reply")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	if h.cfg.Detector.IsHelp(hook.Body) {
		_, _ = h.cfg.Guard.MarkProcessed(ctx, hook.MessageSID, "sms.help")
		h.cfg.Metrics.ObserveInbound("sms", "help")
		respondTwiML(w, telephony.MessageTwiML(h.cfg.HelpReply))
		return
	}

	if h.cfg.Detector.IsStart(hook.Body) {
		if err := h.handleStart(ctx, tenant, hook.From); err != nil {
			h.cfg.Logger.Error("resubscribe failed", "error", err, "phone", hook.From)
			h.deferOrFail(w, r)
			return
		}
		if _, err := h.cfg.Guard.MarkProcessed(ctx, hook.MessageSID, "sms.start"); err != nil {
			h.cfg.Logger.Error("mark processed failed", "error", err, "message_sid", hook.MessageSID)
		}
		h.cfg.Metrics.ObserveInbound("sms", "start")
		respondTwiML(w, telephony.MessageTwiML(h.cfg.StartReply))
		return
	}

	claimed, err := h.cfg.Guard.MarkProcessed(ctx, hook.MessageSID, "sms.inbound")
	if err != nil {
		h.cfg.Logger.Error("mark processed failed", "error", err, "message_sid", hook.MessageSID)
		h.deferOrFail(w, r)
		return
	}
	if !claimed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	h.recordReply(ctx, tenant, hook.From, hook.Body)

	// Kill switch: the business paused automation, so the raw message is
	// forwarded to the operator and the caller gets no auto-reply.
	if !tenant.AIActive {
		h.forwardRaw(ctx, tenant, hook.From, hook.Body)
		h.cfg.Metrics.ObserveInbound("sms", "kill_switch")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	switch classify.Feedback(hook.Body) {
	case classify.FeedbackPositive:
		h.handlePositiveFeedback(ctx, tenant, hook.From)
		h.cfg.Metrics.ObserveInbound("sms", "review_positive")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	case classify.FeedbackNegative:
		h.handleNegativeFeedback(ctx, tenant, hook.From, hook.Body)
		h.cfg.Metrics.ObserveInbound("sms", "review_negative")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	outcome := "buffered"
	if classify.Urgency(hook.Body) == classify.UrgencyHigh {
		outcome = "urgent"
		if err := h.cfg.Leads.SetIntent(ctx, tenant.ID, hook.From, leads.IntentEmergency); err != nil {
			h.cfg.Logger.Error("set intent failed", "error", err, "phone", hook.From)
		}
		h.sendUrgentAlert(ctx, tenant, hook.From, hook.Body)
		h.enqueueCustomerReply(ctx, tenant, hook.From, telephony.EmergencyAckText(tenant.BusinessName))
	} else {
		if err := h.cfg.Alerts.Buffer(ctx, tenant.ID, hook.From, hook.Body); err != nil {
			h.cfg.Logger.Error("buffer alert failed", "error", err, "phone", hook.From)
		}
		h.enqueueCustomerReply(ctx, tenant, hook.From, telephony.StandardAckText(tenant.BusinessName))
	}

	h.cfg.Metrics.ObserveInbound("sms", outcome)
	h.cfg.Metrics.ObserveWebhookLatency("sms", time.Since(start).Seconds())
	respondTwiML(w, telephony.EmptyTwiML())
}

// HandleStatus serves POST /sms/status, the delivery receipt
// callback for queued sends.
func (h *SMSHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	hook, err := telephony.ParseSMSWebhook(r)
	if err != nil || hook.MessageSID == "" || hook.MessageStatus == "" {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	status := telephony.MapMessageStatus(hook.MessageStatus)
	if status == "" {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	key := hook.MessageSID + "_status_" + hook.MessageStatus
	processed, err := h.cfg.Guard.AlreadyProcessed(ctx, key)
	if err != nil {
		h.cfg.Logger.Error("idempotency check failed", "error", err, "message_sid", hook.MessageSID)
		h.deferStatusOrFail(w, r)
		return
	}
	if processed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	claimed, err := h.cfg.Guard.MarkProcessed(ctx, key, "sms.status")
	if err != nil {
		h.cfg.Logger.Error("mark processed failed", "error", err, "message_sid", hook.MessageSID)
		h.deferStatusOrFail(w, r)
		return
	}
	if !claimed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	errDetail := r.FormValue("ErrorCode")
	err = h.cfg.Queue.UpdateStatusByProviderSID(ctx, hook.MessageSID, status, errDetail)
	if errors.Is(err, outbound.ErrNotFound) {
		// Receipts for messages sent outside the queue (TwiML replies).
		h.cfg.Logger.Debug("receipt for unknown message", "message_sid", hook.MessageSID)
	} else if err != nil {
		h.cfg.Logger.Error("update delivery status failed", "error", err, "message_sid", hook.MessageSID)
	} else {
		h.cfg.Logger.Info("delivery receipt",
			"message_sid", hook.MessageSID, "status", status, "error_code", errDetail)
	}
	respondTwiML(w, telephony.EmptyTwiML())
}

// deferOrFail parks the inbound webhook for replay when a backing store
// is down. The provider gets a 200 either way once the event is parked;
// without a replay queue the 5xx asks the provider to retry instead.
func (h *SMSHandler) deferOrFail(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Replay != nil && h.cfg.Replay.Defer(h.HandleInbound, r.URL.Path, r.PostForm) {
		h.cfg.Metrics.ObserveInbound("sms", "deferred")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *SMSHandler) deferStatusOrFail(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Replay != nil && h.cfg.Replay.Defer(h.HandleStatus, r.URL.Path, r.PostForm) {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// handleStop runs the full opt-out: global revocation, queue purge, lead
// flag, and the opt-out cache the dispatcher consults.
func (h *SMSHandler) handleStop(ctx context.Context, phone string) error {
	if err := h.cfg.Consent.Revoke(ctx, nil, phone, "sms_stop"); err != nil {
		return err
	}
	canceled, err := h.cfg.Queue.CancelPendingForPhone(ctx, nil, phone)
	if err != nil {
		h.cfg.Logger.Error("cancel pending failed", "error", err, "phone", phone)
	}
	if err := h.cfg.Leads.MarkOptedOut(ctx, phone); err != nil {
		h.cfg.Logger.Error("mark lead opted out failed", "error", err, "phone", phone)
	}
	if h.cfg.OptOuts != nil {
		if err := h.cfg.OptOuts.MarkOptedOut(ctx, phone); err != nil {
			h.cfg.Logger.Warn("opt-out cache write failed", "error", err, "phone", phone)
		}
	}
	h.cfg.Logger.Info("opted out", "phone", phone, "canceled_messages", canceled)
	return nil
}

// handleStart reverses an opt-out. The express grant is the critical
// write: its timestamp supersedes any earlier revocation, so the phone
// becomes reachable again even if the cache cleanups fail.
func (h *SMSHandler) handleStart(ctx context.Context, tenant *tenants.Tenant, phone string) error {
	if err := h.cfg.Consent.RecordExpress(ctx, nil, tenant.ID, phone, "sms_start"); err != nil {
		return err
	}
	if err := h.cfg.Leads.ClearOptOut(ctx, phone); err != nil {
		h.cfg.Logger.Error("clear lead opt-out failed", "error", err, "phone", phone)
	}
	if h.cfg.OptOuts != nil {
		if err := h.cfg.OptOuts.ClearOptOut(ctx, phone); err != nil {
			h.cfg.Logger.Warn("opt-out cache clear failed", "error", err, "phone", phone)
		}
	}
	h.cfg.Logger.Info("resubscribed", "phone", phone, "tenant", tenant.Slug)
	return nil
}

// recordReply runs the shared lead bookkeeping for every message that
// reaches the pipeline: lead row, implied consent, replied status, and
// nudge cancellation.
func (h *SMSHandler) recordReply(ctx context.Context, tenant *tenants.Tenant, phone, body string) {
	if _, err := h.cfg.Leads.Touch(ctx, tenant.ID, phone, leads.SourceSMS, body); err != nil {
		h.cfg.Logger.Error("lead touch failed", "error", err, "phone", phone)
	}
	if err := h.cfg.Consent.RecordImplied(ctx, nil, tenant.ID, phone, "inbound_sms"); err != nil {
		h.cfg.Logger.Error("record consent failed", "error", err, "phone", phone)
	}
	if err := h.cfg.Leads.MarkReplied(ctx, tenant.ID, phone); err != nil {
		h.cfg.Logger.Error("mark replied failed", "error", err, "phone", phone)
	}
	if err := h.cfg.Nudges.Cancel(ctx, phone); err != nil {
		h.cfg.Logger.Error("cancel nudge failed", "error", err, "phone", phone)
	}
}

// forwardRaw relays the message verbatim to the operator while the AI
// kill switch is on.
func (h *SMSHandler) forwardRaw(ctx context.Context, tenant *tenants.Tenant, phone, body string) {
	msg := &outbound.Message{
		TenantID:   tenant.ID,
		To:         tenant.AlertRecipient(),
		From:       tenant.TrackingNumber,
		Body:       fmt.Sprintf("From %s: %s", phone, body),
		ExternalID: "forward_" + phone,
	}
	if _, err := h.cfg.Queue.Enqueue(ctx, nil, msg); err != nil {
		h.cfg.Logger.Error("forward raw message failed", "error", err, "phone", phone)
	}
}

// handlePositiveFeedback shares the review link with the customer and
// leaves the operator a note.
func (h *SMSHandler) handlePositiveFeedback(ctx context.Context, tenant *tenants.Tenant, phone string) {
	if tenant.ReviewLink != "" {
		h.enqueueCustomerReply(ctx, tenant, phone, telephony.ReviewLinkText(tenant.BusinessName, tenant.ReviewLink))
	}
	if err := h.cfg.Alerts.Buffer(ctx, tenant.ID, phone, "(left positive feedback, review link sent)"); err != nil {
		h.cfg.Logger.Error("buffer alert failed", "error", err, "phone", phone)
	}
}

// handleNegativeFeedback apologizes to the customer and alerts the
// operator immediately.
func (h *SMSHandler) handleNegativeFeedback(ctx context.Context, tenant *tenants.Tenant, phone, body string) {
	h.enqueueCustomerReply(ctx, tenant, phone, telephony.ApologyText(tenant.BusinessName))
	h.sendUrgentAlert(ctx, tenant, phone, "negative review feedback: "+body)
}

// enqueueCustomerReply queues an auto-reply to the customer through the
// normal dispatch path, so the safety gate still has the final word.
func (h *SMSHandler) enqueueCustomerReply(ctx context.Context, tenant *tenants.Tenant, phone, body string) {
	msg := &outbound.Message{
		TenantID: tenant.ID,
		To:       phone,
		From:     tenant.TrackingNumber,
		Body:     body,
	}
	if _, err := h.cfg.Queue.Enqueue(ctx, nil, msg); err != nil {
		h.cfg.Logger.Error("enqueue customer reply failed", "error", err, "phone", phone)
	}
}

// sendUrgentAlert bypasses the debounce buffer for high-urgency messages
// and expedites any context already buffered so it arrives right behind.
func (h *SMSHandler) sendUrgentAlert(ctx context.Context, tenant *tenants.Tenant, phone, body string) {
	msg := &outbound.Message{
		TenantID:   tenant.ID,
		To:         tenant.AlertRecipient(),
		From:       tenant.TrackingNumber,
		Body:       alerts.FormatUrgentAlert(phone, body),
		Urgent:     true,
		ExternalID: "urgent_" + phone,
	}
	if _, err := h.cfg.Queue.Enqueue(ctx, nil, msg); err != nil {
		h.cfg.Logger.Error("enqueue urgent alert failed", "error", err, "phone", phone)
		return
	}
	if err := h.cfg.Alerts.Expedite(ctx, tenant.ID, phone); err != nil {
		h.cfg.Logger.Error("expedite alert buffer failed", "error", err, "phone", phone)
	}
	h.cfg.Logger.Warn("urgent lead message", "tenant", tenant.Slug, "phone", phone)
}
