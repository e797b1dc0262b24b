package workflows

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/fyrsmithlabs/goaltrack/internal/workflows"

type workflowMetrics struct {
	activityDuration metric.Float64Histogram
	activityErrors   metric.Int64Counter
	schedulesStarted metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *workflowMetrics
)

// getMetrics creates the instruments on first use. An instrument the meter
// refuses falls back to a no-op.
func getMetrics() *workflowMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		fallback := noop.NewMeterProvider().Meter(instrumentationName)
		m := &workflowMetrics{}

		var err error
		m.activityDuration, err = meter.Float64Histogram(
			"goaltrack.workflows.activity.duration",
			metric.WithDescription("Duration of notification activity executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			m.activityDuration, _ = fallback.Float64Histogram("activity.duration")
		}

		m.activityErrors, err = meter.Int64Counter(
			"goaltrack.workflows.activity.errors",
			metric.WithDescription("Number of notification activity failures"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			m.activityErrors, _ = fallback.Int64Counter("activity.errors")
		}

		m.schedulesStarted, err = meter.Int64Counter(
			"goaltrack.workflows.schedules.started",
			metric.WithDescription("Cron workflows started by this process"),
			metric.WithUnit("{workflow}"),
		)
		if err != nil {
			m.schedulesStarted, _ = fallback.Int64Counter("schedules.started")
		}
		metrics = m
	})
	return metrics
}
