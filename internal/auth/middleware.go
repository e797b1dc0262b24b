package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

const userKey = "auth.user"

// Middleware verifies the bearer token and stores the user on the echo
// context. Rejections answer 401 with the provider's message.
func Middleware(p Provider) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := Authenticate(c, p)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, Message(err))
			}
			c.Set(userKey, u)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithUserID(req.Context(), u.ID)))
			return next(c)
		}
	}
}

// Authenticate verifies the request's bearer token.
func Authenticate(c echo.Context, p Provider) (*User, error) {
	token, err := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return nil, err
	}
	return p.Verify(c.Request().Context(), token)
}

// UserFrom returns the user stored by Middleware.
func UserFrom(c echo.Context) (*User, bool) {
	u, ok := c.Get(userKey).(*User)
	return u, ok && u != nil
}

// Message is the text shown to clients for an auth failure.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if errors.Is(err, ErrUnauthorized) {
		return "Unauthorized"
	}
	return err.Error()
}
