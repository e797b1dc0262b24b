package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/goaltrack/internal/config"
)

// Cron workflow ids. One execution of each exists per namespace.
const (
	PlanScheduleID     = "goaltrack-plan-notifications"
	DispatchScheduleID = "goaltrack-dispatch-notifications"
)

// Register adds the notification workflows and activities to a worker.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(PlanNotificationsWorkflow, workflow.RegisterOptions{Name: PlanWorkflowName})
	r.RegisterWorkflowWithOptions(DispatchNotificationsWorkflow, workflow.RegisterOptions{Name: DispatchWorkflowName})
	r.RegisterWorkflowWithOptions(DailyNotificationsWorkflow, workflow.RegisterOptions{Name: DailyWorkflowName})
	r.RegisterActivityWithOptions(acts, activity.RegisterOptions{})
}

// Starter is the part of client.Client used to start workflows.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// StartSchedules starts the plan and dispatch cron workflows on the
// configured task queue. Already running crons are left alone. An empty
// cron expression skips that workflow.
func StartSchedules(ctx context.Context, c Starter, cfg config.TemporalConfig) ([]string, error) {
	crons := []struct {
		id, cron, name string
	}{
		{PlanScheduleID, cfg.PlanCron, PlanWorkflowName},
		{DispatchScheduleID, cfg.DispatchCron, DispatchWorkflowName},
	}

	started := make([]string, 0, len(crons))
	for _, s := range crons {
		if s.cron == "" {
			continue
		}
		_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:           s.id,
			TaskQueue:    cfg.TaskQueue,
			CronSchedule: s.cron,
		}, s.name)
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			continue
		}
		if err != nil {
			return started, fmt.Errorf("starting %s: %w", s.id, err)
		}
		getMetrics().schedulesStarted.Add(ctx, 1)
		started = append(started, s.id)
	}
	return started, nil
}

// Dial connects a Temporal client for cfg.
func Dial(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}
