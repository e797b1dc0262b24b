// Package goalgen turns a free-text thought into structured goals with an
// LLM. Input is scrubbed of credentials and PII before it leaves the process.
package goalgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/llm"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
	"github.com/fyrsmithlabs/goaltrack/internal/secrets"
)

const tracerName = "github.com/fyrsmithlabs/goaltrack/internal/goalgen"

const (
	defaultMaxGoals = 5
	maxInputRunes   = 2000
	defaultSaveDays = 90
)

var (
	// ErrInvalidInput is returned for an empty or oversized thought.
	ErrInvalidInput = errors.New("invalid thought input")
	// ErrGeneration is returned when the model call fails or its reply holds
	// no usable goal.
	ErrGeneration = errors.New("goal generation failed")
)

// Completer is the text generation the service needs. *llm.Client
// implements it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Creator persists a generated goal for a user. *progress.Service
// implements it.
type Creator interface {
	CreateGoal(ctx context.Context, userID string, g *goal.Goal) (*progress.SaveResult, error)
}

// Service generates goals.
type Service struct {
	completer Completer
	scrubber  *secrets.Scrubber
	creator   Creator
	logger    *logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	maxGoals  int
}

// Option configures a Service.
type Option func(*Service)

// WithScrubber sets the scrubber applied to input.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(svc *Service) { svc.scrubber = s }
}

// WithCreator enables persistence for authenticated calls.
func WithCreator(c Creator) Option {
	return func(svc *Service) { svc.creator = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithMaxGoals caps the goals kept from one reply.
func WithMaxGoals(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.maxGoals = n
		}
	}
}

// New creates a Service.
func New(c Completer, opts ...Option) (*Service, error) {
	if c == nil {
		return nil, fmt.Errorf("completer cannot be nil")
	}
	s := &Service{
		completer: c,
		scrubber:  secrets.Nop(),
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		maxGoals:  defaultMaxGoals,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate turns thought into goals. An empty userID is a guest call: the
// goals are returned with fresh ids but never stored. Otherwise each goal is
// created for userID and the stored versions are returned.
func (s *Service) Generate(ctx context.Context, userID, thought string) ([]*goal.Goal, error) {
	ctx, span := s.tracer.Start(ctx, "goalgen.generate")
	defer span.End()
	span.SetAttributes(attribute.Bool("guest", userID == ""))

	thought = strings.TrimSpace(thought)
	if thought == "" {
		return nil, fmt.Errorf("%w: thoughtInput is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(thought) > maxInputRunes {
		return nil, fmt.Errorf("%w: thoughtInput exceeds %d characters", ErrInvalidInput, maxInputRunes)
	}
	if userID != "" {
		ctx = logging.WithUserID(ctx, userID)
	}

	scrubbed := s.scrubber.Scrub(thought)
	if scrubbed.HasFindings() {
		s.logger.Info(ctx, "redacted thought input before generation",
			zap.Strings("rules", scrubbed.RuleIDs()),
			zap.Int("findings", len(scrubbed.Findings)))
	}

	now := s.now()
	reply, err := s.completer.Complete(ctx, llm.Request{
		System:      systemPrompt(now),
		Prompt:      scrubbed.Scrubbed,
		MaxTokens:   1500,
		Temperature: 0.4,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion")
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	goals, err := parseReply(reply, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse reply")
		s.logger.Warn(ctx, "unusable generation reply", zap.Error(err), zap.Int("reply_len", len(reply)))
		return nil, err
	}
	if len(goals) > s.maxGoals {
		goals = goals[:s.maxGoals]
	}
	span.SetAttributes(attribute.Int("goals", len(goals)))

	if userID == "" || s.creator == nil {
		return goals, nil
	}
	stored := make([]*goal.Goal, 0, len(goals))
	for _, g := range goals {
		res, err := s.creator.CreateGoal(ctx, userID, g)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist")
			return nil, fmt.Errorf("storing generated goal: %w", err)
		}
		stored = append(stored, res.Goal)
	}
	return stored, nil
}

func systemPrompt(now time.Time) string {
	return `You turn a person's free-form thoughts into between one and five concrete personal goals.
Today is ` + goal.Day(now) + `.

Every goal has a title, a short description and one category:
- "habit": a recurring daily behaviour. data: {"frequency": [7 booleans, Monday first], "targetDays": number of days}
- "project": a finite piece of work. data: {"tasks": [{"title": "..."}], "dueDate": "YYYY-MM-DD" or omitted}
- "learn": a skill to study. data: {"curriculumItems": [{"title": "..."}]}
- "save": a savings target. data: {"targetAmount": number, "deadline": "YYYY-MM-DD", "spendingTriggers": ["..."]}

Respond ONLY with valid JSON in this format:
{"goals": [{"title": "...", "description": "...", "category": "...", "data": {...}}]}`
}
