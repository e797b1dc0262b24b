package notify

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the notification pipeline.
type Metrics struct {
	UsersProcessed    prometheus.Counter
	Scheduled         *prometheus.CounterVec
	Skipped           *prometheus.CounterVec
	MessagesGenerated *prometheus.CounterVec
	Sent              *prometheus.CounterVec
	Failed            *prometheus.CounterVec
	PassDuration      *prometheus.HistogramVec
}

// NewMetrics registers the pipeline metrics once per process on the
// default registry.
//
// Metrics:
//   - goaltrack_notify_users_processed_total
//   - goaltrack_notify_scheduled_total{category}
//   - goaltrack_notify_skipped_total{reason}
//   - goaltrack_notify_messages_generated_total{source}
//   - goaltrack_notify_sent_total{channel}
//   - goaltrack_notify_failed_total{channel}
//   - goaltrack_notify_pass_duration_seconds{pass}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			UsersProcessed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "goaltrack_notify_users_processed_total",
				Help: "Users examined by planning passes",
			}),
			Scheduled: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "goaltrack_notify_scheduled_total",
				Help: "Notifications queued by planning passes",
			}, []string{"category"}),
			Skipped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "goaltrack_notify_skipped_total",
				Help: "Goals not scheduled, by reason",
			}, []string{"reason"}), // "window", "cadence", "claimed"
			MessagesGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "goaltrack_notify_messages_generated_total",
				Help: "Reminder messages written, by source",
			}, []string{"source"}),
			Sent: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "goaltrack_notify_sent_total",
				Help: "Notifications delivered",
			}, []string{"channel"}),
			Failed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "goaltrack_notify_failed_total",
				Help: "Notifications that failed delivery",
			}, []string{"channel"}),
			PassDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "goaltrack_notify_pass_duration_seconds",
				Help:    "Duration of planning and dispatch passes",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			}, []string{"pass"}),
		}
	})
	return globalMetrics
}
