package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"

	"github.com/leadline/leadline/internal/consent"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/telephony"
	"github.com/leadline/leadline/pkg/logging"
)

type unsubscribeLedger interface {
	Revoke(ctx context.Context, q consent.Querier, phone, source string) error
}

type unsubscribeQueue interface {
	CancelPendingForPhone(ctx context.Context, q outbound.Querier, phone string) (int64, error)
}

type unsubscribeLeads interface {
	MarkOptedOut(ctx context.Context, phone string) error
}

// UnsubscribeConfig wires the web opt-out endpoint.
type UnsubscribeConfig struct {
	Consent unsubscribeLedger
	Queue   unsubscribeQueue
	Leads   unsubscribeLeads
	OptOuts optOutCache
	Logger  *logging.Logger

	// Secret signs the per-phone unsubscribe tokens embedded in message
	// footers. Empty disables the endpoint.
	Secret string
}

// UnsubscribeHandler serves the web opt-out link. Same effect as texting
// STOP, for recipients who click instead of reply.
type UnsubscribeHandler struct {
	cfg UnsubscribeConfig
}

func NewUnsubscribeHandler(cfg UnsubscribeConfig) *UnsubscribeHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	cfg.Logger = cfg.Logger.Component("unsubscribe")
	return &UnsubscribeHandler{cfg: cfg}
}

// UnsubscribeToken signs a phone number for the opt-out link.
func UnsubscribeToken(secret, phone string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(phone))
	return hex.EncodeToString(mac.Sum(nil))
}

// UnsubscribeURL builds the full opt-out link for a phone number.
func UnsubscribeURL(baseURL, secret, phone string) string {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("token", UnsubscribeToken(secret, phone))
	return baseURL + "/unsubscribe?" + q.Encode()
}

// Handle serves GET /unsubscribe?phone=...&token=...
func (h *UnsubscribeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Secret == "" {
		http.Error(w, "unsubscribe not configured", http.StatusNotFound)
		return
	}
	phone := telephony.NormalizeE164(r.URL.Query().Get("phone"))
	token := r.URL.Query().Get("token")
	if phone == "" || token == "" {
		http.Error(w, "missing phone or token", http.StatusBadRequest)
		return
	}
	expected := UnsubscribeToken(h.cfg.Secret, phone)
	if !hmac.Equal([]byte(token), []byte(expected)) {
		h.cfg.Logger.Warn("invalid unsubscribe token", "phone", phone)
		http.Error(w, "invalid unsubscribe link", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	if err := h.cfg.Consent.Revoke(ctx, nil, phone, "web_unsubscribe"); err != nil {
		h.cfg.Logger.Error("revoke failed", "error", err, "phone", phone)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := h.cfg.Queue.CancelPendingForPhone(ctx, nil, phone); err != nil {
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
	h.cfg.Logger.Info("web opt-out", "phone", phone)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("You have been unsubscribed and will receive no further messages.\n"))
}
