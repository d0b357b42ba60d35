package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the lead-capture flows.
type EngineMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	queueClaimed    prometheus.Counter
	queueDeadTotal  prometheus.Counter
	alertsFlushed   prometheus.Counter
	nudgesScheduled prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound provider webhooks",
		}, []string{"event_type", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "outbound",
			Name:      "sends_total",
			Help:      "Total outbound send attempts by result",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadline",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		queueClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "outbound",
			Name:      "claimed_total",
			Help:      "Total queue rows claimed by dispatchers",
		}),
		queueDeadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "outbound",
			Name:      "dead_letter_total",
			Help:      "Total messages moved to the dead-letter state",
		}),
		alertsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "alerts",
			Name:      "flushed_total",
			Help:      "Total operator alert buffers flushed",
		}),
		nudgesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "nudge",
			Name:      "scheduled_total",
			Help:      "Total follow-up nudges scheduled",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency,
		m.queueClaimed, m.queueDeadTotal, m.alertsFlushed, m.nudgesScheduled)
	return m
}

func (m *EngineMetrics) ObserveInbound(eventType, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *EngineMetrics) ObserveSend(result string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(result).Inc()
}

func (m *EngineMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *EngineMetrics) ObserveClaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.queueClaimed.Add(float64(n))
}

func (m *EngineMetrics) ObserveDeadLetter() {
	if m == nil {
		return
	}
	m.queueDeadTotal.Inc()
}

func (m *EngineMetrics) ObserveAlertFlush() {
	if m == nil {
		return
	}
	m.alertsFlushed.Inc()
}

func (m *EngineMetrics) ObserveNudgeScheduled() {
	if m == nil {
		return
	}
	m.nudgesScheduled.Inc()
}
