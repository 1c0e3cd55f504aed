package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/notification-engine/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	NotificationsSent   *prometheus.CounterVec
	NotificationsFailed *prometheus.CounterVec
	NotificationLatency *prometheus.HistogramVec

	QueueDepthUrgent prometheus.Gauge
	QueueDepthHigh   prometheus.Gauge
	QueueDepthNormal prometheus.Gauge
	QueueDepthLow    prometheus.Gauge

	RateLimited      *prometheus.CounterVec
	Deduplicated     *prometheus.CounterVec
	BatchesOpened    prometheus.Counter
	BatchesFlushed   *prometheus.CounterVec
	BatchMembers     prometheus.Histogram
	SocketConnected  prometheus.Gauge
	SocketFramesSent *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of successfully delivered notifications.",
		}, []string{"channel"}),

		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of failed channel send attempts, including ones retried later.",
		}, []string{"channel"}),

		NotificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Latency from the start of dispatch to the adapter's ack.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		QueueDepthUrgent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_urgent",
			Help: "Current number of items in the urgent-priority queue.",
		}),
		QueueDepthHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_high",
			Help: "Current number of items in the high-priority queue.",
		}),
		QueueDepthNormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_normal",
			Help: "Current number of items in the normal-priority queue.",
		}),
		QueueDepthLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_low",
			Help: "Current number of items in the low-priority queue.",
		}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_rate_limited_total",
			Help: "Total number of notifications suppressed by the rate limiter.",
		}, []string{"type"}),

		Deduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_deduplicated_total",
			Help: "Total number of notifications suppressed as duplicates.",
		}, []string{"type"}),

		BatchesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batches_opened_total",
			Help: "Total number of digests opened.",
		}),

		BatchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batches_flushed_total",
			Help: "Total number of digests flushed, by trigger.",
		}, []string{"trigger"}),

		BatchMembers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_members",
			Help:    "Number of member notifications folded into a flushed digest.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		SocketConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "socket_connections",
			Help: "Current number of live socket connections.",
		}),

		SocketFramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socket_frames_sent_total",
			Help: "Total number of outbound socket frames, by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotificationLatency,
		m.QueueDepthUrgent,
		m.QueueDepthHigh,
		m.QueueDepthNormal,
		m.QueueDepthLow,
		m.RateLimited,
		m.Deduplicated,
		m.BatchesOpened,
		m.BatchesFlushed,
		m.BatchMembers,
		m.SocketConnected,
		m.SocketFramesSent,
	)

	return m
}

// WorkerHooks returns the metric callback functions the worker pool invokes
// on the dispatch outcome of a channel send. Centralises the prometheus
// observation calls so the worker package stays otherwise import-free of
// the metrics package's instrument types.
func (m *Metrics) WorkerHooks() (
	onSent func(domain.Channel, time.Duration),
	onFailed func(domain.Channel),
) {
	onSent = func(ch domain.Channel, latency time.Duration) {
		m.NotificationsSent.WithLabelValues(string(ch)).Inc()
		m.NotificationLatency.WithLabelValues(string(ch)).Observe(latency.Seconds())
	}
	onFailed = func(ch domain.Channel) {
		m.NotificationsFailed.WithLabelValues(string(ch)).Inc()
	}
	return
}
