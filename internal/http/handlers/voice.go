package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/internal/hours"
	"github.com/leadline/leadline/internal/leads"
	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/internal/webhook"
	"github.com/leadline/leadline/pkg/logging"
)

type leadRecorder interface {
	Touch(ctx context.Context, tenantID uuid.UUID, phone, source, message string) (*leads.Lead, error)
	AttachVoicemail(ctx context.Context, tenantID uuid.UUID, phone, url, transcript string) error
}

type consentRecorder interface {
	RecordImplied(ctx context.Context, q consent.Querier, tenantID uuid.UUID, phone, source string) error
}

type nudgeScheduler interface {
	Schedule(ctx context.Context, tenant *tenants.Tenant, phone string) error
}

type transcriptionJobs interface {
	Submit(tenantID uuid.UUID, phone, recordingURL string) bool
}

// lineLookup asks the carrier whether a number can receive texts.
type lineLookup interface {
	LookupLineType(ctx context.Context, phone string) (string, error)
}

// VoiceConfig wires the voice webhook handler.
type VoiceConfig struct {
	Tenants tenantDirectory
	Guard   eventGuard
	Leads   leadRecorder
	Consent consentRecorder
	Queue   messageQueue
	Nudges  nudgeScheduler
	Alerts  alertBuffer
	Jobs    transcriptionJobs
	Lookup  lineLookup
	Replay  replayDeferrer
	Logger  *logging.Logger
	Metrics *metrics.EngineMetrics

	// PublicBaseURL is the externally reachable origin used to build the
	// dial-status and voicemail callback URLs.
	PublicBaseURL string
	// DialTimeoutSeconds is how long the operator's phone rings before the
	// call counts as missed.
	DialTimeoutSeconds int
}

// VoiceHandler answers inbound calls: bridge to the operator during
// business hours, voicemail plus the missed-call text flow otherwise.
type VoiceHandler struct {
	cfg VoiceConfig
}

func NewVoiceHandler(cfg VoiceConfig) *VoiceHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger = cfg.Logger.Component("voice")
	if cfg.DialTimeoutSeconds <= 0 {
		cfg.DialTimeoutSeconds = 20
	}
	return &VoiceHandler{cfg: cfg}
}

// HandleInbound serves POST /voice, including the press-1 gather
// callback (distinguished by ?gather=1 so the re-POST of the same call
// sid is a separate idempotency event).
func (h *VoiceHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hook, err := telephony.ParseVoiceWebhook(r)
	if err != nil || hook.CallSID == "" {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	gatherReturn := r.URL.Query().Get("gather") == "1"
	key := hook.CallSID + "_voice"
	eventType := "voice.inbound"
	if gatherReturn {
		key = hook.CallSID + "_voice_gather"
		eventType = "voice.gather"
	}

	processed, err := h.cfg.Guard.AlreadyProcessed(ctx, key)
	if err != nil {
		h.cfg.Logger.Error("idempotency check failed", "error", err, "call_sid", hook.CallSID)
		h.deferOrFail(w, r)
		return
	}
	if processed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	tenant, err := h.cfg.Tenants.ResolveByTrackingNumber(ctx, hook.To)
	if errors.Is(err, tenants.ErrNotFound) {
		h.cfg.Logger.Warn("call to unknown tracking number", "to", hook.To)
		h.cfg.Metrics.ObserveInbound("voice", "unknown_tenant")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	if err != nil {
		h.cfg.Logger.Error("tenant lookup failed", "error", err, "to", hook.To)
		h.deferOrFail(w, r)
		return
	}

	claimed, err := h.cfg.Guard.MarkProcessed(ctx, key, eventType)
	if err != nil {
		h.cfg.Logger.Error("mark processed failed", "error", err, "call_sid", hook.CallSID)
		h.deferOrFail(w, r)
		return
	}
	if !claimed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	if gatherReturn {
		if hook.Digits == "1" {
			h.cfg.Logger.Info("emergency escalation, dialing operator",
				"tenant", tenant.Slug, "from", hook.From, "call_sid", hook.CallSID)
			h.cfg.Metrics.ObserveInbound("voice", "emergency_dial")
			respondTwiML(w, telephony.DialTwiML(
				"Connecting you now.",
				tenant.OperatorNumber,
				h.cfg.PublicBaseURL+"/voice/status",
				h.cfg.DialTimeoutSeconds,
			))
		} else {
			// No digit before the gather timed out; treat the call like any
			// other after-hours miss.
			h.answerAfterHours(ctx, w, tenant, hook)
		}
		h.cfg.Metrics.ObserveWebhookLatency("voice", time.Since(start).Seconds())
		return
	}

	switch {
	case hours.FromTenant(tenant).OpenAt(time.Now()):
		h.cfg.Logger.Info("bridging call to operator",
			"tenant", tenant.Slug, "from", hook.From, "call_sid", hook.CallSID)
		h.cfg.Metrics.ObserveInbound("voice", "dialed")
		respondTwiML(w, telephony.DialTwiML(
			tenant.Greeting,
			tenant.OperatorNumber,
			h.cfg.PublicBaseURL+"/voice/status",
			h.cfg.DialTimeoutSeconds,
		))
	case tenant.EmergencyMode:
		// The prompt itself is side-effect free; the gather callback
		// decides whether to wake the operator or start the text flow.
		h.cfg.Logger.Info("after-hours call, offering emergency escalation",
			"tenant", tenant.Slug, "from", hook.From, "call_sid", hook.CallSID)
		h.cfg.Metrics.ObserveInbound("voice", "emergency_prompt")
		respondTwiML(w, telephony.GatherTwiML(
			"If this is an emergency, press 1 to be connected right away. Otherwise, please hold on.",
			h.cfg.PublicBaseURL+"/voice?gather=1",
			5,
		))
	default:
		h.cfg.Logger.Info("after-hours call, sending to voicemail",
			"tenant", tenant.Slug, "from", hook.From, "call_sid", hook.CallSID)
		h.cfg.Metrics.ObserveInbound("voice", "after_hours")
		h.answerAfterHours(ctx, w, tenant, hook)
	}
	h.cfg.Metrics.ObserveWebhookLatency("voice", time.Since(start).Seconds())
}

// answerAfterHours runs the missed-call flow and plays the after-hours
// voicemail prompt. The call is already missed, so the text flow starts
// now rather than waiting for a dial outcome.
func (h *VoiceHandler) answerAfterHours(ctx context.Context, w http.ResponseWriter, tenant *tenants.Tenant, hook *telephony.VoiceWebhook) {
	h.runMissedCallFlow(ctx, tenant, hook.From)
	respondTwiML(w, telephony.VoicemailTwiML(
		tenant.VoicemailPrompt,
		h.cfg.PublicBaseURL+"/voice/voicemail",
	))
}

// HandleDialStatus serves POST /voice/status, the action callback
// of the operator dial. A missed outcome kicks off the text-back flow.
func (h *VoiceHandler) HandleDialStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	hook, err := telephony.ParseVoiceWebhook(r)
	if err != nil || hook.CallSID == "" {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	key := webhook.StatusKey(hook.CallSID, hook.DialCallStatus)
	processed, err := h.cfg.Guard.AlreadyProcessed(ctx, key)
	if err != nil {
		h.cfg.Logger.Error("idempotency check failed", "error", err, "call_sid", hook.CallSID)
		h.deferOrFail(w, r)
		return
	}
	if processed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	tenant, err := h.resolveTenant(ctx, hook.To)
	if errors.Is(err, tenants.ErrNotFound) {
		h.cfg.Logger.Warn("dial status for unknown number", "to", hook.To)
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	if err != nil {
		h.cfg.Logger.Error("tenant lookup failed", "error", err, "to", hook.To)
		h.deferOrFail(w, r)
		return
	}

	claimed, err := h.cfg.Guard.MarkProcessed(ctx, key, "voice.status")
	if err != nil {
		h.cfg.Logger.Error("mark processed failed", "error", err, "call_sid", hook.CallSID)
		h.deferOrFail(w, r)
		return
	}
	if !claimed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	if telephony.IsMissedDial(hook.DialCallStatus) {
		h.cfg.Logger.Info("missed call",
			"tenant", tenant.Slug, "from", hook.From, "dial_status", hook.DialCallStatus)
		h.runMissedCallFlow(ctx, tenant, hook.From)
		h.cfg.Metrics.ObserveInbound("voice_status", "missed")
		respondTwiML(w, telephony.VoicemailTwiML(
			tenant.VoicemailPrompt,
			h.cfg.PublicBaseURL+"/voice/voicemail",
		))
	} else {
		h.cfg.Metrics.ObserveInbound("voice_status", "answered")
		respondTwiML(w, telephony.EmptyTwiML())
	}
	h.cfg.Metrics.ObserveWebhookLatency("voice_status", time.Since(start).Seconds())
}

// HandleVoicemail serves POST /voice/voicemail with the recording
// details once the caller hangs up.
func (h *VoiceHandler) HandleVoicemail(w http.ResponseWriter, r *http.Request) {
	hook, err := telephony.ParseVoiceWebhook(r)
	if err != nil || hook.CallSID == "" {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	key := hook.CallSID + "_voicemail"
	processed, err := h.cfg.Guard.AlreadyProcessed(ctx, key)
	if err != nil {
		h.cfg.Logger.Error("idempotency check failed", "error", err, "call_sid", hook.CallSID)
		h.deferOrFail(w, r)
		return
	}
	if processed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	tenant, err := h.resolveTenant(ctx, hook.To)
	if errors.Is(err, tenants.ErrNotFound) {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	if err != nil {
		h.cfg.Logger.Error("tenant lookup failed", "error", err, "to", hook.To)
		h.deferOrFail(w, r)
		return
	}

	claimed, err := h.cfg.Guard.MarkProcessed(ctx, key, "voice.voicemail")
	if err != nil {
		h.cfg.Logger.Error("mark processed failed", "error", err, "call_sid", hook.CallSID)
		h.deferOrFail(w, r)
		return
	}
	if !claimed {
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}

	if _, err := h.cfg.Leads.Touch(ctx, tenant.ID, hook.From, leads.SourceVoicemail, ""); err != nil {
		h.cfg.Logger.Error("lead touch failed", "error", err, "phone", hook.From)
	}
	if err := h.cfg.Leads.AttachVoicemail(ctx, tenant.ID, hook.From, hook.RecordingURL, ""); err != nil {
		h.cfg.Logger.Error("attach voicemail failed", "error", err, "phone", hook.From)
	}
	if h.cfg.Jobs != nil && hook.RecordingURL != "" {
		h.cfg.Jobs.Submit(tenant.ID, hook.From, hook.RecordingURL)
	}
	h.cfg.Metrics.ObserveInbound("voicemail", "recorded")
	respondTwiML(w, telephony.GoodbyeTwiML(tenant.BusinessName))
}

// resolveTenant tries the tracking number first, then the operator number.
// Dial callbacks sometimes report the leg to the operator's phone.
func (h *VoiceHandler) resolveTenant(ctx context.Context, number string) (*tenants.Tenant, error) {
	tenant, err := h.cfg.Tenants.ResolveByTrackingNumber(ctx, number)
	if errors.Is(err, tenants.ErrNotFound) {
		return h.cfg.Tenants.ResolveByOperatorNumber(ctx, number)
	}
	return tenant, err
}

// deferOrFail parks the webhook for replay when a backing store is
// down, answering 200 so the provider stops retrying. Without a replay
// queue the 5xx asks the provider to retry instead.
func (h *VoiceHandler) deferOrFail(w http.ResponseWriter, r *http.Request) {
	handler := h.HandleInbound
	switch r.URL.Path {
	case "/voice/status":
		handler = h.HandleDialStatus
	case "/voice/voicemail":
		handler = h.HandleVoicemail
	}
	if h.cfg.Replay != nil && h.cfg.Replay.Defer(handler, r.URL.RequestURI(), r.PostForm) {
		h.cfg.Metrics.ObserveInbound("voice", "deferred")
		respondTwiML(w, telephony.EmptyTwiML())
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// runMissedCallFlow records the lead, captures implied consent, queues the
// missed-call text, schedules the follow-up nudge, and buffers the operator
// alert. Each step is best-effort: a failed lead write must not block the
// text-back. Landlines can't receive the text, so they get the operator
// alert only.
func (h *VoiceHandler) runMissedCallFlow(ctx context.Context, tenant *tenants.Tenant, caller string) {
	if caller == "" {
		return
	}
	if _, err := h.cfg.Leads.Touch(ctx, tenant.ID, caller, leads.SourceMissedCall, ""); err != nil {
		h.cfg.Logger.Error("lead touch failed", "error", err, "phone", caller)
	}
	if err := h.cfg.Consent.RecordImplied(ctx, nil, tenant.ID, caller, "missed_call"); err != nil {
		h.cfg.Logger.Error("record consent failed", "error", err, "phone", caller)
	}

	if h.lineType(ctx, caller) == telephony.LineTypeLandline {
		h.cfg.Logger.Info("landline caller, skipping text-back", "phone", caller)
		h.cfg.Metrics.ObserveInbound("voice", "landline")
		if err := h.cfg.Alerts.Buffer(ctx, tenant.ID, caller, "(missed call from landline, no text sent)"); err != nil {
			h.cfg.Logger.Error("buffer alert failed", "error", err, "phone", caller)
		}
		return
	}

	msg := &outbound.Message{
		TenantID: tenant.ID,
		To:       caller,
		From:     tenant.TrackingNumber,
		Body:     telephony.MissedCallText(tenant.BusinessName),
	}
	if _, err := h.cfg.Queue.Enqueue(ctx, nil, msg); err != nil {
		h.cfg.Logger.Error("enqueue missed-call text failed", "error", err, "phone", caller)
		return
	}
	if err := h.cfg.Nudges.Schedule(ctx, tenant, caller); err != nil {
		h.cfg.Logger.Error("schedule nudge failed", "error", err, "phone", caller)
	}
	if err := h.cfg.Alerts.Buffer(ctx, tenant.ID, caller, "(missed call)"); err != nil {
		h.cfg.Logger.Error("buffer alert failed", "error", err, "phone", caller)
	}
}

// lineType asks the carrier lookup, treating unknown and lookup errors
// as textable. An unreachable lookup API must not block the text-back.
func (h *VoiceHandler) lineType(ctx context.Context, phone string) string {
	if h.cfg.Lookup == nil {
		return telephony.LineTypeUnknown
	}
	lt, err := h.cfg.Lookup.LookupLineType(ctx, phone)
	if err != nil {
		h.cfg.Logger.Warn("line type lookup failed", "error", err, "phone", phone)
		return telephony.LineTypeUnknown
	}
	return lt
}
