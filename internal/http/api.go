package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/goaltrack/internal/auth"
	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

// userID returns the caller set by auth.Middleware.
func userID(c echo.Context) (string, error) {
	u, ok := auth.UserFrom(c)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return u.ID, nil
}

// bindGoal decodes a goal body. Decode errors name the bad field, so they
// are passed through as the 400 message.
func bindGoal(c echo.Context) (*goal.Goal, error) {
	var g goal.Goal
	if err := json.NewDecoder(c.Request().Body).Decode(&g); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid goal body: "+err.Error())
	}
	return &g, nil
}

func (s *Server) handleListGoals(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	goals, err := s.deps.Progress.ListGoals(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	if goals == nil {
		goals = []*goal.Goal{}
	}
	return c.JSON(http.StatusOK, GoalsResponse{Goals: goals})
}

func (s *Server) handleGetGoal(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	g, err := s.deps.Progress.GetGoal(c.Request().Context(), uid, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handleCreateGoal(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	g, err := bindGoal(c)
	if err != nil {
		return err
	}
	res, err := s.deps.Progress.CreateGoal(c.Request().Context(), uid, g)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleSaveGoal(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	g, err := bindGoal(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if g.ID != "" && g.ID != id {
		return echo.NewHTTPError(http.StatusBadRequest, "goal id does not match path")
	}
	g.ID = id

	ctx := logging.WithGoalID(c.Request().Context(), id)
	res, err := s.deps.Progress.SaveGoal(ctx, uid, g)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeleteGoal(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if err := s.deps.Progress.DeleteGoal(logging.WithGoalID(c.Request().Context(), id), uid, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleProfile(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	p, err := s.deps.Progress.Profile(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleGetPreferences(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	p, err := s.deps.Store.GetPreferences(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handlePutPreferences(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var p store.Preferences
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid preferences body")
	}
	p.UserID = uid
	p.UpdatedAt = s.now().UTC()
	p.Personality = strings.ToLower(strings.TrimSpace(p.Personality))
	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.deps.Store.UpsertPreferences(c.Request().Context(), &p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &p)
}

func (s *Server) handleAddDeviceToken(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req DeviceTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	if err := s.deps.Store.AddDeviceToken(c.Request().Context(), uid, token, s.now().UTC()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
