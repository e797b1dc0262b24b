package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/auth"
	"github.com/fyrsmithlabs/goaltrack/internal/channels"
	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/goalgen"
	"github.com/fyrsmithlabs/goaltrack/internal/notify"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

const generationFailedMessage = "We couldn't generate goals right now. You can still create a goal manually."

var badRequest = []error{
	goal.ErrInvalidGoal,
	goal.ErrUnknownCategory,
	goal.ErrWrongCategory,
	goal.ErrDateOutOfRange,
	goal.ErrInvalidDate,
	goal.ErrItemNotFound,
	goal.ErrInvalidAmount,
	goalgen.ErrInvalidInput,
	notify.ErrInvalidPhone,
	notify.ErrNoRecipient,
	store.ErrInvalidPreferences,
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a domain error to its HTTP status and client message.
func statusFor(err error) (int, string) {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest, err.Error()
		}
	}
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, auth.Message(err)
	case errors.Is(err, progress.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, goalgen.ErrGeneration):
		return http.StatusBadGateway, generationFailedMessage
	case errors.Is(err, channels.ErrRejected), errors.Is(err, auth.ErrProvider):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, notify.ErrChannelDisabled):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}

// handleError renders every error as {"error": "..."}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	ctx := c.Request().Context()

	var status int
	var msg string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	} else {
		status, msg = statusFor(err)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug(ctx, "request rejected", zap.Int("status", status), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if werr := c.JSON(status, ErrorResponse{Error: msg}); werr != nil {
		s.logger.Warn(ctx, "failed to write error response", zap.Error(werr))
	}
}
