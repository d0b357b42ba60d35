// Package nudge schedules the single follow-up text a lead receives
// when they never replied to the missed-call message. Any inbound reply
// cancels the pending nudge.
package nudge

import (
	"context"
	"fmt"
	"time"

	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/pkg/logging"
)

// DefaultDelay is how long after the missed-call text the nudge fires.
const DefaultDelay = 15 * time.Minute

type nudgeQueue interface {
	Enqueue(ctx context.Context, q outbound.Querier, m *outbound.Message) (outbound.EnqueueOutcome, error)
	CancelByExternalID(ctx context.Context, q outbound.Querier, externalID, reason string) (int64, error)
}

// Scheduler creates and cancels nudges through the outbound queue.
type Scheduler struct {
	queue   nudgeQueue
	delay   time.Duration
	logger  *logging.Logger
	metrics *metrics.EngineMetrics
	nowFunc func() time.Time
}

func NewScheduler(queue nudgeQueue, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		queue:   queue,
		delay:   DefaultDelay,
		logger:  logger.Component("nudge"),
		nowFunc: time.Now,
	}
}

func (s *Scheduler) WithDelay(d time.Duration) *Scheduler {
	if d > 0 {
		s.delay = d
	}
	return s
}

func (s *Scheduler) WithMetrics(m *metrics.EngineMetrics) *Scheduler {
	s.metrics = m
	return s
}

func (s *Scheduler) WithNowFunc(now func() time.Time) *Scheduler {
	if now != nil {
		s.nowFunc = now
	}
	return s
}

// ExternalID is the queue marker for a caller's nudge. One active nudge
// per caller, and the cancel path matches on this exact id.
func ExternalID(phone string) string {
	return "nudge_" + phone
}

// Schedule enqueues a delayed nudge for the caller. The queue's
// external-id dedup makes a second missed call while a nudge is already
// pending a no-op, with no read-then-write race.
func (s *Scheduler) Schedule(ctx context.Context, tenant *tenants.Tenant, phone string) error {
	msg := &outbound.Message{
		TenantID:    tenant.ID,
		To:          phone,
		From:        tenant.TrackingNumber,
		Body:        fmt.Sprintf("Hi again from %s! Still need a hand? Reply here anytime and we'll take care of you. Reply STOP to opt out.", tenant.BusinessName),
		ExternalID:  ExternalID(phone),
		ScheduledAt: s.nowFunc().Add(s.delay),
	}
	outcome, err := s.queue.Enqueue(ctx, nil, msg)
	if err != nil {
		return fmt.Errorf("nudge: schedule: %w", err)
	}
	if outcome != outbound.OutcomeQueued {
		s.logger.Info("nudge not scheduled", "phone", phone, "outcome", string(outcome))
		return nil
	}
	s.metrics.ObserveNudgeScheduled()
	s.logger.Info("nudge scheduled", "phone", phone, "send_at", msg.ScheduledAt)
	return nil
}

// Cancel drops any pending nudge for the caller. Runs on every inbound
// reply; canceling nothing is fine.
func (s *Scheduler) Cancel(ctx context.Context, phone string) error {
	n, err := s.queue.CancelByExternalID(ctx, nil, ExternalID(phone), "lead replied")
	if err != nil {
		return fmt.Errorf("nudge: cancel: %w", err)
	}
	if n > 0 {
		s.logger.Info("nudge canceled", "phone", phone, "count", n)
	}
	return nil
}
