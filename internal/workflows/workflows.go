// Package workflows runs the notification pipeline as Temporal cron
// workflows: planning, dispatch, and the combined daily pass.
package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fyrsmithlabs/goaltrack/internal/notify"
)

const (
	PlanWorkflowName     = "PlanNotificationsWorkflow"
	DispatchWorkflowName = "DispatchNotificationsWorkflow"
	DailyWorkflowName    = "DailyNotificationsWorkflow"
)

// planOptions retry a failed planning pass: the per-day claim keeps a
// repeated pass from scheduling a goal twice.
func planOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 3,
		},
	}
}

// dispatchOptions never retry: a row is attempted once.
func dispatchOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

// PlanNotificationsWorkflow runs one planning pass.
func PlanNotificationsWorkflow(ctx workflow.Context) (*notify.PlanResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, planOptions())

	var a *Activities
	var res notify.PlanResult
	if err := workflow.ExecuteActivity(ctx, a.PlanNotificationsActivity).Get(ctx, &res); err != nil {
		return nil, WrapActivityError("failed to plan notifications", err)
	}
	logger.Info("planning pass finished",
		"processed_users", res.ProcessedUsers,
		"scheduled", res.Scheduled,
		"errors", len(res.Errors))
	return &res, nil
}

// DispatchNotificationsWorkflow sends every due notification.
func DispatchNotificationsWorkflow(ctx workflow.Context) (*notify.DispatchResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, dispatchOptions())

	var a *Activities
	var res notify.DispatchResult
	if err := workflow.ExecuteActivity(ctx, a.DispatchNotificationsActivity).Get(ctx, &res); err != nil {
		return nil, WrapActivityError("failed to dispatch notifications", err)
	}
	logger.Info("dispatch pass finished",
		"sent", res.SentCount,
		"failed", res.FailedCount,
		"total", res.TotalProcessed)
	return &res, nil
}

// DailyNotificationsWorkflow plans and then dispatches. A planning failure is
// recorded and dispatch still runs; a dispatch failure fails the workflow.
func DailyNotificationsWorkflow(ctx workflow.Context) (*notify.DailyResult, error) {
	logger := workflow.GetLogger(ctx)
	var a *Activities
	result := &notify.DailyResult{Errors: []string{}}

	var plan notify.PlanResult
	err := workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, planOptions()), a.PlanNotificationsActivity).Get(ctx, &plan)
	if err != nil {
		logger.Error("planning failed, dispatching anyway", "error", err)
		result.Errors = append(result.Errors, FormatErrorForResult("failed to plan notifications", err))
	} else {
		result.Errors = append(result.Errors, plan.Errors...)
	}

	var sent notify.DispatchResult
	err = workflow.ExecuteActivity(workflow.WithActivityOptions(ctx, dispatchOptions()), a.DispatchNotificationsActivity).Get(ctx, &sent)
	if err != nil {
		result.Errors = append(result.Errors, FormatErrorForResult("failed to dispatch notifications", err))
		return result, WrapActivityError("failed to dispatch notifications", err)
	}
	result.NotificationsSent = sent.SentCount
	result.Errors = append(result.Errors, sent.Errors...)
	return result, nil
}
