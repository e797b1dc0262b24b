// Package http serves the goaltrack API: the mobile app's function
// endpoints, the cron-triggered notification passes and a small REST
// surface for goals, profile and preferences.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/auth"
	"github.com/fyrsmithlabs/goaltrack/internal/config"
	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goalgen"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/notify"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

const serviceName = "goaltrack"

// UserStore is the direct storage access the handlers need. *store.Store
// implements it.
type UserStore interface {
	Ping(ctx context.Context) error
	DeleteUserData(ctx context.Context, userID string) error
	AddDeviceToken(ctx context.Context, userID, token string, at time.Time) error
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
	UpsertPreferences(ctx context.Context, p *store.Preferences) error
}

// Deps are the services behind the routes. Generator, Planner and
// Dispatcher are optional; their routes answer 503 when unset.
type Deps struct {
	Auth       auth.Provider
	Store      UserStore
	Progress   *progress.Service
	Generator  *goalgen.Service
	Planner    *notify.Planner
	Dispatcher *notify.Dispatcher
	Publisher  events.Publisher
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config config.ServerConfig
	now    func() time.Time
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth provider cannot be nil")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if deps.Progress == nil {
		return nil, fmt.Errorf("progress service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
		now:    time.Now,
	}
	e.HTTPErrorHandler = s.handleError

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{
			echo.HeaderAuthorization, echo.HeaderContentType, "apikey", "x-client-info", cronSecretHeader,
		},
	}))
	e.Use(s.requestLogger)
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

// requestLogger puts the request id on the context and logs one line per
// request once the response is written.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), reqID)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		s.logger.Info(c.Request().Context(), "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	fn := s.echo.Group("/functions/v1")
	fn.POST("/generate-goal", s.handleGenerateGoal)
	fn.POST("/complete-goal-action", s.handleCompleteGoalAction)
	fn.POST("/delete-user", s.handleDeleteUser)

	cron := fn.Group("", s.requireCronSecret)
	cron.POST("/daily-notifications", s.handleDailyNotifications)
	cron.POST("/generate-notifications", s.handleGenerateNotifications)
	cron.POST("/send-notifications", s.handleSendNotifications)
	cron.POST("/send-email-notification", s.handleSendEmail)
	cron.POST("/send-whatsapp-notification", s.handleSendWhatsApp)

	v1 := s.echo.Group("/api/v1", auth.Middleware(s.deps.Auth))
	v1.GET("/goals", s.handleListGoals)
	v1.POST("/goals", s.handleCreateGoal)
	v1.GET("/goals/:id", s.handleGetGoal)
	v1.PUT("/goals/:id", s.handleSaveGoal)
	v1.DELETE("/goals/:id", s.handleDeleteGoal)
	v1.GET("/profile", s.handleProfile)
	v1.GET("/preferences", s.handleGetPreferences)
	v1.PUT("/preferences", s.handlePutPreferences)
	v1.POST("/device-tokens", s.handleAddDeviceToken)
}

// Echo exposes the router so callers can mount extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleHealth reports whether the store answers.
func (s *Server) handleHealth(c echo.Context) error {
	if err := s.deps.Store.Ping(c.Request().Context()); err != nil {
		s.logger.Warn(c.Request().Context(), "health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Service: serviceName})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: serviceName})
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
