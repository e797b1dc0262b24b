package workflows

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.temporal.io/sdk/activity"

	"github.com/fyrsmithlabs/goaltrack/internal/notify"
)

// PlanRunner is a planning pass. *notify.Planner implements it.
type PlanRunner interface {
	Run(ctx context.Context) (*notify.PlanResult, error)
}

// DispatchRunner is a dispatch pass. *notify.Dispatcher implements it.
type DispatchRunner interface {
	Run(ctx context.Context) (*notify.DispatchResult, error)
}

// Activities binds the notification passes to a worker.
type Activities struct {
	Planner    PlanRunner
	Dispatcher DispatchRunner
}

// NewActivities checks both passes are present.
func NewActivities(p PlanRunner, d DispatchRunner) (*Activities, error) {
	if p == nil {
		return nil, fmt.Errorf("planner cannot be nil")
	}
	if d == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	return &Activities{Planner: p, Dispatcher: d}, nil
}

// PlanNotificationsActivity runs Planner.Run.
func (a *Activities) PlanNotificationsActivity(ctx context.Context) (*notify.PlanResult, error) {
	start := time.Now()
	activity.GetLogger(ctx).Info("planning notifications")
	res, err := a.Planner.Run(ctx)
	recordActivity(ctx, "plan", start, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DispatchNotificationsActivity runs Dispatcher.Run.
func (a *Activities) DispatchNotificationsActivity(ctx context.Context) (*notify.DispatchResult, error) {
	start := time.Now()
	activity.GetLogger(ctx).Info("dispatching notifications")
	res, err := a.Dispatcher.Run(ctx)
	recordActivity(ctx, "dispatch", start, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func recordActivity(ctx context.Context, name string, start time.Time, err error) {
	m := getMetrics()
	attrs := metric.WithAttributes(attribute.String("activity", name))
	m.activityDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		m.activityErrors.Add(ctx, 1, attrs)
	}
}
