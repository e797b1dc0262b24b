package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

// ActionResult is the complete-goal-action response.
type ActionResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	GoalCompleted bool   `json:"goalCompleted"`
}

// CompleteGoalAction records one unit of progress for today on a goal, as
// triggered from a notification: habits and save goals mark today, projects
// and curricula complete their next open item. category must match the
// stored goal.
func (s *Service) CompleteGoalAction(ctx context.Context, goalID, userID string, category goal.Category) (*ActionResult, error) {
	ctx, span := s.tracer.Start(ctx, "progress.complete_goal_action")
	defer span.End()
	span.SetAttributes(attribute.String("goal.id", goalID), attribute.String("goal.category", string(category)))
	ctx = logging.WithGoalID(logging.WithUserID(ctx, userID), goalID)

	g, err := s.ownedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if g.Category() != category {
		return nil, fmt.Errorf("%w: goal is %s, not %s", goal.ErrWrongCategory, g.Category(), category)
	}
	if g.IsCompleted() {
		return &ActionResult{Success: true, Message: "Goal already completed", GoalCompleted: true}, nil
	}

	today := s.now().In(s.userLocation(ctx, userID))
	next, err := goal.Apply(g, goal.CompleteNext(today))
	if errors.Is(err, goal.ErrNothingToComplete) {
		return &ActionResult{Success: true, Message: nothingLeftMessage(category)}, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := s.SaveGoal(ctx, userID, next)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "goal action completed", zap.Bool("goal_completed", res.Completed))

	msg := progressMessage(category)
	if res.Completed {
		msg = "Goal completed! Amazing work!"
	}
	return &ActionResult{Success: true, Message: msg, GoalCompleted: res.Completed}, nil
}

// userLocation resolves the user's timezone, falling back to the default.
func (s *Service) userLocation(ctx context.Context, userID string) *time.Location {
	prefs, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn(ctx, "loading preferences for timezone", zap.Error(err))
		}
		return s.defaultTZ
	}
	if prefs.Timezone == "" {
		return s.defaultTZ
	}
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		return s.defaultTZ
	}
	return loc
}

func progressMessage(c goal.Category) string {
	switch c {
	case goal.CategoryHabit:
		return "Marked today as done. Keep the streak alive!"
	case goal.CategoryProject:
		return "Task completed. One step closer!"
	case goal.CategoryLearn:
		return "Lesson completed. Keep learning!"
	case goal.CategorySave:
		return "Saved for today. Your balance is growing!"
	}
	return "Progress recorded."
}

func nothingLeftMessage(c goal.Category) string {
	switch c {
	case goal.CategoryHabit, goal.CategorySave:
		return "Already done for today."
	}
	return "Nothing left to complete."
}
