package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/auth"
	"github.com/fyrsmithlabs/goaltrack/internal/channels"
	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/notify"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
)

const cronSecretHeader = "X-Cron-Secret"

var errNotConfigured = errors.New("not configured on this server")

func unavailable(what string) error {
	return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("%s is %v", what, errNotConfigured))
}

// requireCronSecret guards scheduler-triggered routes when a secret is
// configured.
func (s *Server) requireCronSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.config.CronSecret.IsSet() {
			return next(c)
		}
		got := c.Request().Header.Get(cronSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.CronSecret.Value())) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid cron secret")
		}
		return next(c)
	}
}

func (s *Server) handleGenerateGoal(c echo.Context) error {
	if s.deps.Generator == nil {
		return unavailable("goal generation")
	}
	var req GenerateGoalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	userID := ""
	if !req.IsGuest {
		u, err := auth.Authenticate(c, s.deps.Auth)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, auth.Message(err))
		}
		userID = u.ID
	}

	goals, err := s.deps.Generator.Generate(c.Request().Context(), userID, req.ThoughtInput)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GoalsResponse{Goals: goals})
}

func (s *Server) handleCompleteGoalAction(c echo.Context) error {
	u, err := auth.Authenticate(c, s.deps.Auth)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.Message(err))
	}
	var req CompleteGoalActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.GoalID == "" || req.Category == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goalId and category are required")
	}
	if req.UserID != "" && req.UserID != u.ID {
		return progress.ErrForbidden
	}
	category, err := goal.ParseCategory(req.Category)
	if err != nil {
		return err
	}

	ctx := logging.WithGoalID(logging.WithUserID(c.Request().Context(), u.ID), req.GoalID)
	res, err := s.deps.Progress.CompleteGoalAction(ctx, req.GoalID, u.ID, category)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleDeleteUser removes the caller's data and then the account itself.
// Local rows are removed before the provider account.
func (s *Server) handleDeleteUser(c echo.Context) error {
	u, err := auth.Authenticate(c, s.deps.Auth)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.Message(err))
	}
	ctx := logging.WithUserID(c.Request().Context(), u.ID)

	if err := s.deps.Store.DeleteUserData(ctx, u.ID); err != nil {
		return err
	}
	if err := s.deps.Auth.DeleteUser(ctx, u.ID); err != nil {
		return err
	}
	if err := s.deps.Publisher.Publish(ctx, events.New(events.UserDeleted, u.ID, "", nil)); err != nil {
		s.logger.Warn(ctx, "failed to publish event", zap.String("type", string(events.UserDeleted)), zap.Error(err))
	}
	s.logger.Info(ctx, "user deleted")
	return c.JSON(http.StatusOK, DeleteUserResponse{Message: "User account deleted successfully", UserID: u.ID})
}

func (s *Server) handleDailyNotifications(c echo.Context) error {
	if s.deps.Planner == nil {
		return unavailable("notification planning")
	}
	res, err := s.deps.Planner.RunDaily(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleGenerateNotifications(c echo.Context) error {
	if s.deps.Planner == nil {
		return unavailable("notification planning")
	}
	res, err := s.deps.Planner.Run(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSendNotifications(c echo.Context) error {
	if s.deps.Dispatcher == nil {
		return unavailable("notification dispatch")
	}
	res, err := s.deps.Dispatcher.Run(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSendEmail(c echo.Context) error {
	return s.sendDirect(c, channels.Email)
}

func (s *Server) handleSendWhatsApp(c echo.Context) error {
	return s.sendDirect(c, channels.WhatsApp)
}

func (s *Server) sendDirect(c echo.Context, ch channels.Channel) error {
	if s.deps.Dispatcher == nil {
		return unavailable("notification dispatch")
	}
	var req notify.DirectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := s.deps.Dispatcher.SendDirect(c.Request().Context(), ch, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
