package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leadline/leadline/internal/observability/metrics"
	"github.com/leadline/leadline/internal/outbound"
	"github.com/leadline/leadline/internal/tenants"
	"github.com/leadline/leadline/pkg/logging"
)

type enqueuer interface {
	Enqueue(ctx context.Context, q outbound.Querier, m *outbound.Message) (outbound.EnqueueOutcome, error)
}

type tenantResolver interface {
	GetByID(ctx context.Context, id string) (*tenants.Tenant, error)
}

// Sweeper flushes due alert buffers. Reading the due rows, enqueueing
// the operator alert, and deleting the buffer happen in one transaction
// so a crash can't drop or double-send an alert.
type Sweeper struct {
	buffers  *Store
	queue    enqueuer
	tenants  tenantResolver
	logger   *logging.Logger
	metrics  *metrics.EngineMetrics
	interval time.Duration
	batch    int
}

func NewSweeper(buffers *Store, queue enqueuer, resolver tenantResolver, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		buffers:  buffers,
		queue:    queue,
		tenants:  resolver,
		logger:   logger.Component("alert-sweeper"),
		interval: 5 * time.Second,
		batch:    50,
	}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sweeper) WithMetrics(m *metrics.EngineMetrics) *Sweeper {
	s.metrics = m
	return s
}

// Run sweeps until the context is canceled, with a final sweep on
// shutdown.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Sweep(context.Background())
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep flushes one batch of due buffers and returns how many alerts it
// enqueued.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if s.buffers == nil || s.queue == nil {
		return 0
	}
	tx, err := s.buffers.Begin(ctx)
	if err != nil {
		s.logger.Error("begin sweep tx failed", "error", err)
		return 0
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := s.buffers.ListDue(ctx, tx, s.batch)
	if err != nil {
		s.logger.Error("list due buffers failed", "error", err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	flushed := 0
	for _, entry := range due {
		if err := s.flush(ctx, tx, entry); err != nil {
			s.logger.Error("flush alert failed", "error", err,
				"tenant_id", entry.TenantID, "phone", entry.Phone)
			continue
		}
		flushed++
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit sweep failed", "error", err)
		return 0
	}
	return flushed
}

func (s *Sweeper) flush(ctx context.Context, tx outbound.Querier, entry Entry) error {
	tenant, err := s.tenants.GetByID(ctx, entry.TenantID.String())
	if err != nil {
		return err
	}
	alert := &outbound.Message{
		ID:         uuid.New(),
		TenantID:   entry.TenantID,
		To:         tenant.AlertRecipient(),
		From:       tenant.TrackingNumber,
		Body:       FormatAlert(entry.Phone, entry.Count, entry.Messages),
		ExternalID: "alert_" + entry.Phone,
	}
	outcome, err := s.queue.Enqueue(ctx, tx, alert)
	if err != nil {
		return err
	}
	if outcome != outbound.OutcomeQueued {
		s.logger.Info("alert not queued", "outcome", string(outcome),
			"tenant_id", entry.TenantID, "phone", entry.Phone)
	}
	if err := s.buffers.Delete(ctx, tx, entry.TenantID, entry.Phone); err != nil {
		return err
	}
	s.metrics.ObserveAlertFlush()
	s.logger.Info("alert flushed", "tenant_id", entry.TenantID,
		"phone", entry.Phone, "message_count", entry.Count)
	return nil
}
