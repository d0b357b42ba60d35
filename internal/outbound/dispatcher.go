package outbound

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/safety"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/pkg/logging"
)

type dispatchStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]*Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerSID string) error
	ScheduleRetry(ctx context.Context, m *Message, sendErr string) (string, error)
	Release(ctx context.Context, id uuid.UUID, reason string) error
	SetTerminalStatus(ctx context.Context, id uuid.UUID, status, reason string) error
	UpdateBody(ctx context.Context, id uuid.UUID, body string) error
}

type smsGateway interface {
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

type sendGate interface {
	Check(ctx context.Context, req safety.Request) (safety.Verdict, error)
}

type tenantResolver interface {
	GetByID(ctx context.Context, id string) (*tenants.Tenant, error)
}

type leadMarker interface {
	MarkContacted(ctx context.Context, tenantID uuid.UUID, phone string) error
}

type permanentChecker func(error) bool

// Dispatcher drains the outbound queue: claim a batch, gate each
// message, send, and record the outcome. Polling adapts: the interval
// backs off while the queue is idle and snaps back on work.
type Dispatcher struct {
	store       dispatchStore
	gateway     smsGateway
	gate        sendGate
	tenants     tenantResolver
	leads       leadMarker
	logger      *logging.Logger
	metrics     *metrics.EngineMetrics
	batchSize   int
	minInterval time.Duration
	maxInterval time.Duration
	safeMode    bool
	isPermanent permanentChecker
}

func NewDispatcher(store dispatchStore, gateway smsGateway, gate sendGate, resolver tenantResolver, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		store:       store,
		gateway:     gateway,
		gate:        gate,
		tenants:     resolver,
		logger:      logger.Component("dispatcher"),
		batchSize:   10,
		minInterval: 100 * time.Millisecond,
		maxInterval: 2 * time.Second,
		isPermanent: func(error) bool { return false },
	}
}

func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

func (d *Dispatcher) WithPollInterval(min, max time.Duration) *Dispatcher {
	if min > 0 {
		d.minInterval = min
	}
	if max >= min && max > 0 {
		d.maxInterval = max
	}
	return d
}

// WithPermanentChecker installs the classifier for non-retryable send
// errors, typically telephony.IsPermanent.
func (d *Dispatcher) WithPermanentChecker(fn func(error) bool) *Dispatcher {
	if fn != nil {
		d.isPermanent = fn
	}
	return d
}

func (d *Dispatcher) WithMetrics(m *metrics.EngineMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithLeadStore enables lead status advancement: the first successful
// send to a lead marks it contacted.
func (d *Dispatcher) WithLeadStore(l leadMarker) *Dispatcher {
	d.leads = l
	return d
}

// WithSafeMode holds every message in the queue without sending.
// Messages are released untouched, so lifting safe mode drains them.
func (d *Dispatcher) WithSafeMode(on bool) *Dispatcher {
	d.safeMode = on
	return d
}

// Run processes the queue until the context is canceled. A final drain
// runs on shutdown so claimed messages are not stranded.
func (d *Dispatcher) Run(ctx context.Context) {
	interval := d.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.drain(context.Background())
			return
		case <-timer.C:
			n := d.drain(ctx)
			if n > 0 {
				interval = d.minInterval
			} else {
				interval = interval * 3 / 2
				if interval > d.maxInterval {
					interval = d.maxInterval
				}
			}
			timer.Reset(interval)
		}
	}
}

// drain claims and processes one batch, returning how many messages it
// handled.
func (d *Dispatcher) drain(ctx context.Context) int {
	if d.store == nil || d.gateway == nil {
		return 0
	}
	msgs, err := d.store.ClaimBatch(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("claim batch failed", "error", err)
		return 0
	}
	d.metrics.ObserveClaimed(len(msgs))
	for _, m := range msgs {
		d.process(ctx, m)
	}
	return len(msgs)
}

func (d *Dispatcher) process(ctx context.Context, m *Message) {
	if d.safeMode {
		if err := d.store.Release(ctx, m.ID, "held: safe mode"); err != nil {
			d.logger.Error("safe-mode release failed", "error", err, "message_id", m.ID)
		}
		d.metrics.ObserveSend("held")
		return
	}

	tenant, err := d.tenants.GetByID(ctx, m.TenantID.String())
	if err != nil {
		d.logger.Error("tenant lookup failed", "error", err, "message_id", m.ID)
		d.releaseOrRetry(ctx, m, "tenant lookup failed: "+err.Error())
		return
	}
	operator := m.To == tenant.AlertRecipient()

	verdict, err := d.gate.Check(ctx, safety.Request{
		TenantID: m.TenantID,
		To:       m.To,
		Body:     m.Body,
		Location: tenant.Location(),
		Operator: operator,
		Urgent:   m.Urgent,
	})
	if err != nil {
		d.logger.Error("safety check failed", "error", err, "message_id", m.ID)
		d.releaseOrRetry(ctx, m, "safety check failed: "+err.Error())
		return
	}

	switch verdict.Decision {
	case safety.DecisionBlock:
		if err := d.store.SetTerminalStatus(ctx, m.ID, StatusFailedOptOut, verdict.Reason); err != nil {
			d.logger.Error("mark opt-out failed", "error", err, "message_id", m.ID)
		}
		d.metrics.ObserveSend("blocked")
		return
	case safety.DecisionSuppress:
		if err := d.store.SetTerminalStatus(ctx, m.ID, StatusFailedSafety, verdict.Reason); err != nil {
			d.logger.Error("mark suppressed failed", "error", err, "message_id", m.ID)
		}
		d.metrics.ObserveSend("suppressed")
		return
	case safety.DecisionDefer:
		// Quiet-hours deferral is not a failure: no attempt is consumed.
		if err := d.store.Release(ctx, m.ID, verdict.Reason); err != nil {
			d.logger.Error("release failed", "error", err, "message_id", m.ID)
		}
		d.metrics.ObserveSend("deferred")
		return
	}

	// Internal alerts skip the compliance footer; it is for customers.
	if !operator {
		if body, changed := EnsureFooter(m.Body); changed {
			m.Body = body
			if err := d.store.UpdateBody(ctx, m.ID, body); err != nil {
				d.logger.Error("persist footer failed", "error", err, "message_id", m.ID)
			}
		}
	}
	if domain := ShortenerDomain(m.Body); domain != "" {
		d.logger.Warn("body contains url shortener, carriers may filter", "domain", domain, "message_id", m.ID)
	}

	sid, err := d.gateway.SendSMS(ctx, m.From, m.To, m.Body)
	if err != nil {
		d.handleSendFailure(ctx, m, err)
		return
	}
	if err := d.store.MarkSent(ctx, m.ID, sid); err != nil {
		d.logger.Error("mark sent failed", "error", err, "message_id", m.ID)
		return
	}
	if d.leads != nil && !operator {
		if err := d.leads.MarkContacted(ctx, m.TenantID, m.To); err != nil {
			d.logger.Error("mark contacted failed", "error", err, "message_id", m.ID)
		}
	}
	d.metrics.ObserveSend("sent")
	d.logger.Info("message sent", "message_id", m.ID, "to", m.To, "sid", sid, "attempts", m.Attempts)
}

func (d *Dispatcher) handleSendFailure(ctx context.Context, m *Message, sendErr error) {
	if d.isPermanent(sendErr) {
		// Burning retries on a bad number helps nobody.
		m.Attempts = MaxAttempts
	}
	status, err := d.store.ScheduleRetry(ctx, m, sendErr.Error())
	if err != nil {
		d.logger.Error("schedule retry failed", "error", err, "message_id", m.ID)
		return
	}
	if status == StatusFailedPermanent {
		d.metrics.ObserveDeadLetter()
		d.metrics.ObserveSend("failed_permanent")
		d.logger.Error("message permanently failed", "message_id", m.ID, "to", m.To, "error", sendErr)
		return
	}
	d.metrics.ObserveSend("retry")
	d.logger.Warn("send failed, scheduled retry", "message_id", m.ID, "attempts", m.Attempts+1, "error", sendErr)
}

// releaseOrRetry puts a message back without consuming an attempt when
// the failure was on our side, not the carrier's.
func (d *Dispatcher) releaseOrRetry(ctx context.Context, m *Message, reason string) {
	if err := d.store.Release(ctx, m.ID, reason); err != nil {
		d.logger.Error("release failed", "error", err, "message_id", m.ID)
	}
}
