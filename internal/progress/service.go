package progress

import (
	"context"
	"errors"
	"fmt"
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

const tracerName = "github.com/fyrsmithlabs/goaltrack/internal/progress"

// ErrForbidden is returned when a user touches a goal they do not own.
var ErrForbidden = errors.New("goal belongs to another user")

// Store is the persistence the service needs. *store.Store implements it.
type Store interface {
	CreateGoal(ctx context.Context, g *goal.Goal) error
	ReplaceGoal(ctx context.Context, g *goal.Goal) error
	GetGoal(ctx context.Context, id string) (*goal.Goal, error)
	DeleteGoal(ctx context.Context, id string) error
	ListGoals(ctx context.Context, userID string) ([]*goal.Goal, error)
	CountCompletedGoals(ctx context.Context, userID string, category goal.Category) (int, error)
	SumGoalXP(ctx context.Context, userID string) (int, error)
	GetProfile(ctx context.Context, userID string) (*store.Profile, error)
	UpsertProfile(ctx context.Context, p *store.Profile) error
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
}

// Medal is one newly awarded tier.
type Medal struct {
	Category goal.Category `json:"category"`
	Tier     goal.Tier     `json:"tier"`
	BonusXP  int           `json:"bonusXp"`
}

// SaveResult is the outcome of a goal write.
type SaveResult struct {
	Goal *goal.Goal `json:"goal"`
	// Completed is true only on the write that set CompletedAt.
	Completed bool           `json:"completed"`
	Medals    []Medal        `json:"medals,omitempty"`
	Profile   *store.Profile `json:"profile"`
}

// Service owns goal writes and profile accounting.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	defaultTZ *time.Location

	// userLocks serialises profile read-modify-write per user.
	userLocks sync.Map
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithDefaultTimezone sets the zone used for users without one.
func WithDefaultTimezone(loc *time.Location) Option {
	return func(s *Service) { s.defaultTZ = loc }
}

// NewService creates a progress service.
func NewService(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	s := &Service{
		store:     st,
		publisher: events.Nop{},
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		defaultTZ: time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) lockUser(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ownedGoal loads a goal and checks ownership.
func (s *Service) ownedGoal(ctx context.Context, userID, goalID string) (*goal.Goal, error) {
	g, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, fmt.Errorf("goal %s: %w", goalID, ErrForbidden)
	}
	return g, nil
}

// ListGoals returns the user's goals, oldest first.
func (s *Service) ListGoals(ctx context.Context, userID string) ([]*goal.Goal, error) {
	return s.store.ListGoals(ctx, userID)
}

// GetGoal returns one goal owned by userID.
func (s *Service) GetGoal(ctx context.Context, userID, goalID string) (*goal.Goal, error) {
	return s.ownedGoal(ctx, userID, goalID)
}

// Profile returns the user's profile, creating it on first access.
func (s *Service) Profile(ctx context.Context, userID string) (*store.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return s.ResyncProfile(ctx, userID)
	}
	return p, err
}

// CreateGoal stores a new goal for userID. Missing ids are generated, XP is
// derived and a goal that is already complete is completed on insert.
func (s *Service) CreateGoal(ctx context.Context, userID string, g *goal.Goal) (*SaveResult, error) {
	ctx, span := s.tracer.Start(ctx, "progress.create_goal")
	defer span.End()

	if g == nil {
		return nil, fmt.Errorf("%w: goal is required", goal.ErrInvalidGoal)
	}
	next := g.Clone()
	now := s.now().UTC()
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	next.UserID = userID
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	next.UpdatedAt = now
	next.CompletedAt = nil
	AssignItemIDs(next)
	if next.Details == nil {
		return nil, fmt.Errorf("%w: details are required", goal.ErrInvalidGoal)
	}
	next.XPEarned = next.Details.XP()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	completed := next.Details.Completed()
	if completed {
		next.CompletedAt = &now
	}

	span.SetAttributes(attribute.String("goal.category", string(next.Category())))
	ctx = logging.WithGoalID(logging.WithUserID(ctx, userID), next.ID)

	unlock := s.lockUser(userID)
	defer unlock()

	if err := s.store.CreateGoal(ctx, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create goal")
		return nil, err
	}
	res, err := s.afterWrite(ctx, next, completed)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.GoalCreated, userID, next.ID, map[string]any{"category": string(next.Category())}))
	return res, nil
}

// SaveGoal replaces a goal with g. The owner, category and creation time
// cannot change; XP is recomputed from g's data; CompletedAt is set the
// first time the completion predicate holds and never cleared.
func (s *Service) SaveGoal(ctx context.Context, userID string, g *goal.Goal) (*SaveResult, error) {
	ctx, span := s.tracer.Start(ctx, "progress.save_goal")
	defer span.End()

	if g == nil || g.Details == nil {
		return nil, fmt.Errorf("%w: details are required", goal.ErrInvalidGoal)
	}
	ctx = logging.WithGoalID(logging.WithUserID(ctx, userID), g.ID)
	span.SetAttributes(attribute.String("goal.id", g.ID), attribute.String("goal.category", string(g.Category())))

	unlock := s.lockUser(userID)
	defer unlock()

	existing, err := s.ownedGoal(ctx, userID, g.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing.Category() != g.Category() {
		return nil, fmt.Errorf("%w: cannot change %s goal to %s", goal.ErrWrongCategory, existing.Category(), g.Category())
	}

	next := g.Clone()
	next.UserID = existing.UserID
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.now().UTC()
	next.XPEarned = next.Details.XP()
	if err := next.Validate(); err != nil {
		return nil, err
	}

	completed := false
	switch {
	case existing.CompletedAt != nil:
		next.CompletedAt = existing.CompletedAt
	case next.Details.Completed():
		at := next.UpdatedAt
		next.CompletedAt = &at
		completed = true
	default:
		next.CompletedAt = nil
	}

	if err := s.store.ReplaceGoal(ctx, next); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace goal")
		return nil, err
	}
	s.logger.Debug(ctx, "goal saved",
		zap.Int("xp", next.XPEarned),
		zap.Int("progress", next.Details.Progress()),
		zap.Bool("completed", completed))

	res, err := s.afterWrite(ctx, next, completed)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.New(events.GoalSaved, userID, next.ID, map[string]any{"xp": next.XPEarned}))
	return res, nil
}

// afterWrite awards medals on completion and resyncs the profile. The caller
// holds the user lock.
func (s *Service) afterWrite(ctx context.Context, g *goal.Goal, completed bool) (*SaveResult, error) {
	profile, err := s.loadProfile(ctx, g.UserID)
	if err != nil {
		return nil, err
	}

	var medals []Medal
	if completed {
		medal, awarded, err := s.awardMedal(ctx, profile, g.Category())
		if err != nil {
			return nil, err
		}
		if awarded {
			medals = append(medals, medal)
		}
		s.logger.Info(ctx, "goal completed", zap.String("category", string(g.Category())))
		s.publish(ctx, events.New(events.GoalCompleted, g.UserID, g.ID, map[string]any{"category": string(g.Category())}))
	}

	if err := s.resync(ctx, profile); err != nil {
		return nil, err
	}
	return &SaveResult{Goal: g, Completed: completed, Medals: medals, Profile: profile}, nil
}

// awardMedal grants the highest unearned tier the category's completed-goal
// count reaches. Tiers are only ever added.
func (s *Service) awardMedal(ctx context.Context, p *store.Profile, category goal.Category) (Medal, bool, error) {
	count, err := s.store.CountCompletedGoals(ctx, p.UserID, category)
	if err != nil {
		return Medal{}, false, err
	}
	tier, ok := goal.NextTier(count, p.Medals[category])
	if !ok || !p.AddMedal(category, tier) {
		return Medal{}, false, nil
	}
	medal := Medal{Category: category, Tier: tier, BonusXP: tier.BonusXP()}
	s.logger.Info(ctx, "medal awarded",
		zap.String("category", string(category)),
		zap.String("tier", string(tier)),
		zap.Int("completed_goals", count))
	s.publish(ctx, events.New(events.MedalAwarded, p.UserID, "", map[string]any{
		"category": string(category),
		"tier":     string(tier),
		"bonusXp":  medal.BonusXP,
	}))
	return medal, true, nil
}

// ResyncProfile recomputes XP and level from the store. Idempotent.
func (s *Service) ResyncProfile(ctx context.Context, userID string) (*store.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "progress.resync_profile")
	defer span.End()

	unlock := s.lockUser(userID)
	defer unlock()

	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.resync(ctx, p); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

func (s *Service) loadProfile(ctx context.Context, userID string) (*store.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &store.Profile{UserID: userID, Medals: map[goal.Category][]goal.Tier{}}, nil
	}
	return p, err
}

func (s *Service) resync(ctx context.Context, p *store.Profile) error {
	sum, err := s.store.SumGoalXP(ctx, p.UserID)
	if err != nil {
		return err
	}
	p.XP = sum + p.MedalBonusXP()
	p.Level = goal.Level(p.XP)
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return err
	}
	s.publish(ctx, events.New(events.ProfileResynced, p.UserID, "", map[string]any{"xp": p.XP, "level": p.Level}))
	return nil
}

// DeleteGoal removes a goal owned by userID and resyncs the profile. Medals
// already earned stay.
func (s *Service) DeleteGoal(ctx context.Context, userID, goalID string) error {
	ctx, span := s.tracer.Start(ctx, "progress.delete_goal")
	defer span.End()

	unlock := s.lockUser(userID)
	defer unlock()

	if _, err := s.ownedGoal(ctx, userID, goalID); err != nil {
		return err
	}
	if err := s.store.DeleteGoal(ctx, goalID); err != nil {
		return err
	}
	p, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.resync(ctx, p); err != nil {
		return err
	}
	s.publish(ctx, events.New(events.GoalDeleted, userID, goalID, nil))
	return nil
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn(ctx, "event publish failed", zap.String("event", string(e.Type)), zap.Error(err))
	}
}

// AssignItemIDs gives every task or curriculum item without an id a fresh
// UUID, and numbers unordered items by position.
func AssignItemIDs(g *goal.Goal) {
	var items []goal.Item
	switch d := g.Details.(type) {
	case *goal.ProjectDetails:
		items = d.Tasks
	case *goal.LearnDetails:
		items = d.CurriculumItems
	default:
		return
	}
	ordered := false
	for _, it := range items {
		if it.Order != 0 {
			ordered = true
			break
		}
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if !ordered {
			items[i].Order = i
		}
	}
}
