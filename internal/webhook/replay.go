package webhook

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadline/leadline/pkg/logging"
)

// RawEvent is a webhook delivery parked for replay after a store outage.
// The original handler is captured with the form, so replay is just
// re-invoking it.
type RawEvent struct {
	Handler  http.HandlerFunc
	Path     string
	Form     url.Values
	Attempts int
}

// ReplayQueue buffers webhook deliveries that hit a backing-store
// failure. The receiving handler still answers 200 so the provider stops
// retrying; the queue re-runs the work once the store recovers. The
// buffer is bounded: when full, the oldest event is dropped to admit the
// newest.
type ReplayQueue struct {
	events      chan RawEvent
	interval    time.Duration
	maxAttempts int
	logger      *logging.Logger
}

// DefaultReplayCapacity bounds memory during a long outage.
const DefaultReplayCapacity = 1000

func NewReplayQueue(capacity int, logger *logging.Logger) *ReplayQueue {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplayQueue{
		events:      make(chan RawEvent, capacity),
		interval:    15 * time.Second,
		maxAttempts: 5,
		logger:      logger.Component("replay-queue"),
	}
}

// WithInterval overrides the replay tick.
func (q *ReplayQueue) WithInterval(d time.Duration) *ReplayQueue {
	if d > 0 {
		q.interval = d
	}
	return q
}

// WithMaxAttempts overrides how many replays an event gets before it is
// dropped for good.
func (q *ReplayQueue) WithMaxAttempts(n int) *ReplayQueue {
	if n > 0 {
		q.maxAttempts = n
	}
	return q
}

// Defer parks an event for replay. Never blocks: a full buffer evicts
// the oldest event. Returns false only when the queue is nil.
func (q *ReplayQueue) Defer(handler http.HandlerFunc, path string, form url.Values) bool {
	if q == nil {
		return false
	}
	q.push(RawEvent{Handler: handler, Path: path, Form: form})
	return true
}

func (q *ReplayQueue) push(ev RawEvent) {
	for {
		select {
		case q.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-q.events:
			q.logger.Warn("replay buffer full, dropping oldest", "path", dropped.Path)
		default:
		}
	}
}

// Len reports how many events are waiting.
func (q *ReplayQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.events)
}

// Run replays parked events until the context is canceled. Each tick
// drains the events present at tick time; an event that fails again with
// a server error goes back to the buffer until its attempts run out.
func (q *ReplayQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// Drain replays every event currently in the buffer and returns how many
// succeeded.
func (q *ReplayQueue) Drain(ctx context.Context) int {
	if q == nil {
		return 0
	}
	succeeded := 0
	for n := len(q.events); n > 0; n-- {
		select {
		case <-ctx.Done():
			return succeeded
		case ev := <-q.events:
			if q.replay(ev) {
				succeeded++
			}
		default:
			return succeeded
		}
	}
	return succeeded
}

// discardWriter satisfies http.ResponseWriter for replays; only the
// status code matters.
type discardWriter struct {
	header http.Header
	status int
}

func newDiscardWriter() *discardWriter {
	return &discardWriter{header: http.Header{}, status: http.StatusOK}
}

func (w *discardWriter) Header() http.Header { return w.header }

func (w *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func (w *discardWriter) WriteHeader(status int) { w.status = status }

// replay re-invokes the original handler and reports success. A server
// error re-parks the event unless its attempts are exhausted.
func (q *ReplayQueue) replay(ev RawEvent) bool {
	req, err := http.NewRequest(http.MethodPost, ev.Path, strings.NewReader(ev.Form.Encode()))
	if err != nil {
		q.logger.Error("deferred webhook unreplayable", "path", ev.Path, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := newDiscardWriter()
	ev.Handler(w, req)

	if w.status < http.StatusInternalServerError {
		q.logger.Info("deferred webhook replayed", "path", ev.Path, "status", w.status, "attempt", ev.Attempts+1)
		return true
	}
	ev.Attempts++
	if ev.Attempts >= q.maxAttempts {
		q.logger.Error("deferred webhook dropped after max attempts", "path", ev.Path, "attempts", ev.Attempts)
		return false
	}
	q.push(ev)
	return false
}
