package http

import "github.com/fyrsmithlabs/goaltrack/internal/goal"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// GenerateGoalRequest is the body of POST /functions/v1/generate-goal.
type GenerateGoalRequest struct {
	ThoughtInput string `json:"thoughtInput"`
	IsGuest      bool   `json:"isGuest"`
}

// GoalsResponse wraps a goal list.
type GoalsResponse struct {
	Goals []*goal.Goal `json:"goals"`
}

// CompleteGoalActionRequest is the body of
// POST /functions/v1/complete-goal-action.
type CompleteGoalActionRequest struct {
	GoalID   string `json:"goalId"`
	UserID   string `json:"userId"`
	Category string `json:"category"`
}

// DeleteUserResponse confirms an account deletion.
type DeleteUserResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// DeviceTokenRequest registers a push token.
type DeviceTokenRequest struct {
	Token string `json:"token"`
}
