package notify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

const tracerName = "github.com/fyrsmithlabs/goaltrack/internal/notify"

// PlanStore is the persistence a planning pass needs.
type PlanStore interface {
	ListPreferences(ctx context.Context) ([]*store.Preferences, error)
	ListActiveGoals(ctx context.Context, userID string) ([]*goal.Goal, error)
	LastNotificationDate(ctx context.Context, goalID string) (string, bool, error)
	ClaimNotificationLog(ctx context.Context, l store.NotificationLog) (bool, error)
	ReleaseNotificationLog(ctx context.Context, goalID, logDate string) error
	EnqueueNotification(ctx context.Context, n *store.ScheduledNotification) error
}

// PlanResult is the generate-notifications response.
type PlanResult struct {
	ProcessedUsers int      `json:"processedUsers"`
	Scheduled      int      `json:"scheduled"`
	Errors         []string `json:"errors"`
}

// DailyResult is the daily-notifications response.
type DailyResult struct {
	NotificationsSent int      `json:"notificationsSent"`
	Errors            []string `json:"errors"`
}

// Planner decides which goals get a reminder and queues them.
type Planner struct {
	store      PlanStore
	generator  *Generator
	dispatcher *Dispatcher
	publisher  events.Publisher
	metrics    *Metrics
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
	defaultTZ  *time.Location

	// rnd is shared by concurrent passes.
	rndMu sync.Mutex
	rnd   *rand.Rand
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithDispatcher lets RunDaily send after planning.
func WithDispatcher(d *Dispatcher) PlannerOption {
	return func(p *Planner) { p.dispatcher = d }
}

// WithPlannerPublisher sets the event publisher.
func WithPlannerPublisher(pub events.Publisher) PlannerOption {
	return func(p *Planner) { p.publisher = pub }
}

// WithPlannerMetrics enables Prometheus metrics.
func WithPlannerMetrics(m *Metrics) PlannerOption {
	return func(p *Planner) { p.metrics = m }
}

// WithPlannerLogger sets the logger.
func WithPlannerLogger(l *logging.Logger) PlannerOption {
	return func(p *Planner) { p.logger = l }
}

// WithPlannerClock overrides time.Now.
func WithPlannerClock(now func() time.Time) PlannerOption {
	return func(p *Planner) { p.now = now }
}

// WithRand sets the source of scheduling offsets.
func WithRand(r *rand.Rand) PlannerOption {
	return func(p *Planner) { p.rnd = r }
}

// WithDefaultTimezone is used for users without a timezone.
func WithDefaultTimezone(loc *time.Location) PlannerOption {
	return func(p *Planner) { p.defaultTZ = loc }
}

// NewPlanner creates a planner.
func NewPlanner(st PlanStore, gen *Generator, opts ...PlannerOption) (*Planner, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	p := &Planner{
		store:     st,
		generator: gen,
		publisher: events.Nop{},
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		defaultTZ: time.UTC,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics != nil {
		gen.SetMetrics(p.metrics)
	}
	return p, nil
}

func (p *Planner) scheduleAt(pref *store.Preferences, local time.Time) time.Time {
	p.rndMu.Lock()
	defer p.rndMu.Unlock()
	return ScheduleAt(pref, local, p.rnd)
}

// Run is one planning pass over every user with preferences. Per-user
// failures are collected in the result; only a failure to list users is
// returned as an error.
func (p *Planner) Run(ctx context.Context) (*PlanResult, error) {
	ctx, span := p.tracer.Start(ctx, "notify.plan")
	defer span.End()
	start := time.Now()
	defer p.observe("plan", start)

	prefs, err := p.store.ListPreferences(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list preferences")
		return nil, fmt.Errorf("listing preferences: %w", err)
	}

	now := p.now()
	res := &PlanResult{Errors: []string{}}
	for _, pref := range prefs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.ProcessedUsers++
		if p.metrics != nil {
			p.metrics.UsersProcessed.Inc()
		}
		n, err := p.planUser(logging.WithUserID(ctx, pref.UserID), pref, now)
		res.Scheduled += n
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("user %s: %v", pref.UserID, err))
		}
	}

	span.SetAttributes(
		attribute.Int("users.processed", res.ProcessedUsers),
		attribute.Int("notifications.scheduled", res.Scheduled),
		attribute.Int("errors", len(res.Errors)),
	)
	p.logger.Info(ctx, "planning pass finished",
		zap.Int("processed_users", res.ProcessedUsers),
		zap.Int("scheduled", res.Scheduled),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func (p *Planner) location(pref *store.Preferences) *time.Location {
	if pref.Timezone == "" {
		return p.defaultTZ
	}
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		return p.defaultTZ
	}
	return loc
}

// planUser schedules the user's due goals and returns how many were queued.
func (p *Planner) planUser(ctx context.Context, pref *store.Preferences, now time.Time) (int, error) {
	local := now.In(p.location(pref))
	if !InWindow(pref, local) {
		p.skip("window")
		return 0, nil
	}
	goals, err := p.store.ListActiveGoals(ctx, pref.UserID)
	if err != nil {
		return 0, fmt.Errorf("listing goals: %w", err)
	}

	tone := ParseTone(pref.Personality)
	today := goal.Day(local)
	scheduled := 0
	var firstErr error
	for _, g := range goals {
		ok, err := p.planGoal(logging.WithGoalID(ctx, g.ID), pref, g, tone, local, today)
		if err != nil {
			p.logger.Warn(ctx, "planning goal failed", zap.String("goal", g.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			scheduled++
		}
	}
	return scheduled, firstErr
}

func (p *Planner) planGoal(ctx context.Context, pref *store.Preferences, g *goal.Goal, tone Tone, local time.Time, today string) (bool, error) {
	last, notified, err := p.store.LastNotificationDate(ctx, g.ID)
	if err != nil {
		return false, err
	}
	if notified {
		d, err := DaysBetween(last, today)
		if err != nil {
			return false, err
		}
		if !ShouldNotify(g.Category(), d, dueSoon(g, local)) {
			p.skip("cadence")
			return false, nil
		}
	}

	// The unique (goal, day) log row is the claim: a concurrent pass that
	// loses the insert skips the goal.
	claimed, err := p.store.ClaimNotificationLog(ctx, store.NotificationLog{
		UserID:    pref.UserID,
		GoalID:    g.ID,
		LogDate:   today,
		CreatedAt: local.UTC(),
	})
	if err != nil {
		return false, err
	}
	if !claimed {
		p.skip("claimed")
		return false, nil
	}

	msg, source := p.generator.Generate(ctx, g, tone, local)
	n := &store.ScheduledNotification{
		ID:          uuid.NewString(),
		UserID:      pref.UserID,
		GoalID:      g.ID,
		Message:     msg,
		ScheduledAt: p.scheduleAt(pref, local).UTC(),
		Status:      store.StatusPending,
		CreatedAt:   local.UTC(),
	}
	if err := p.store.EnqueueNotification(ctx, n); err != nil {
		if rerr := p.store.ReleaseNotificationLog(ctx, g.ID, today); rerr != nil {
			p.logger.Error(ctx, "releasing notification claim", zap.Error(rerr))
		}
		return false, err
	}

	if p.metrics != nil {
		p.metrics.Scheduled.WithLabelValues(string(g.Category())).Inc()
	}
	p.logger.Debug(ctx, "notification scheduled",
		zap.String("notification_id", n.ID),
		zap.Time("scheduled_at", n.ScheduledAt),
		zap.String("source", source))
	p.publish(ctx, events.New(events.NotificationScheduled, pref.UserID, g.ID, map[string]any{
		"notificationId": n.ID,
		"scheduledAt":    n.ScheduledAt,
	}))
	return true, nil
}

// RunDaily plans and then dispatches whatever is due.
func (p *Planner) RunDaily(ctx context.Context) (*DailyResult, error) {
	plan, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}
	res := &DailyResult{Errors: plan.Errors}
	if p.dispatcher == nil {
		return res, nil
	}
	sent, err := p.dispatcher.Run(ctx)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	res.NotificationsSent = sent.SentCount
	res.Errors = append(res.Errors, sent.Errors...)
	return res, nil
}

func (p *Planner) skip(reason string) {
	if p.metrics != nil {
		p.metrics.Skipped.WithLabelValues(reason).Inc()
	}
}

func (p *Planner) observe(pass string, start time.Time) {
	if p.metrics != nil {
		p.metrics.PassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
	}
}

func (p *Planner) publish(ctx context.Context, e events.Event) {
	if err := p.publisher.Publish(ctx, e); err != nil {
		p.logger.Warn(ctx, "event publish failed", zap.String("event", string(e.Type)), zap.Error(err))
	}
}
