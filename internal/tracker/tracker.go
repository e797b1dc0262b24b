package tracker

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

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

const tracerName = "github.com/fyrsmithlabs/goaltrack/internal/tracker"

var (
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("tracker closed")
	// ErrUnknownGoal is returned for goals never passed to SetServer.
	ErrUnknownGoal = errors.New("goal not tracked")
)

// Writer replaces a whole goal record and returns the stored value.
type Writer interface {
	SaveGoal(ctx context.Context, g *goal.Goal) (*goal.Goal, error)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, g *goal.Goal) (*goal.Goal, error)

func (f WriterFunc) SaveGoal(ctx context.Context, g *goal.Goal) (*goal.Goal, error) {
	return f(ctx, g)
}

// Status is the state of one goal.
type Status struct {
	Pending  bool
	XPDelta  int
	InFlight int
}

type state struct {
	server   *goal.Goal
	override *goal.Goal
	xpDelta  int
	inFlight map[string]struct{}
	// converging is set while the convergence write is in flight so a
	// second mismatch accepts the server value instead of looping.
	converging bool
}

func (s *state) pending() bool { return s.override != nil }

func (s *state) view() *goal.Goal {
	if s.override != nil {
		return s.override
	}
	return s.server
}

func (s *state) reset() {
	s.override = nil
	s.xpDelta = 0
	s.converging = false
}

// Controller owns the per-goal optimistic state.
type Controller struct {
	writer   Writer
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
	location *time.Location
	onError  func(goalID string, err error)
	onChange func(goalID string)
	timeout  time.Duration

	mu     sync.Mutex
	goals  map[string]*state
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock overrides time.Now for the date range check.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLocation sets the zone that defines "today".
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) { c.location = loc }
}

// WithErrorHandler receives every failed write. It runs without the
// controller lock held.
func WithErrorHandler(fn func(goalID string, err error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// WithChangeHandler is called after any state transition of a goal.
func WithChangeHandler(fn func(goalID string)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithWriteTimeout bounds each write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a controller writing through w.
func New(w Writer, opts ...Option) (*Controller, error) {
	if w == nil {
		return nil, fmt.Errorf("writer cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		writer:   w,
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		location: time.Local,
		timeout:  30 * time.Second,
		goals:    make(map[string]*state),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetServer records a server-confirmed value, as after a refresh. A goal
// with no writes in flight reconciles against it.
func (c *Controller) SetServer(g *goal.Goal) {
	if g == nil {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	st, ok := c.goals[g.ID]
	if !ok {
		st = &state{inFlight: make(map[string]struct{})}
		c.goals[g.ID] = st
	}
	st.server = g.Clone()
	if len(st.inFlight) == 0 && st.pending() && goal.SameData(st.server, st.override) {
		st.reset()
	}
	c.mu.Unlock()
	c.changed(g.ID)
}

// View returns the value to display: the pending override if any, else the
// last server value.
func (c *Controller) View(goalID string) (*goal.Goal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.goals[goalID]
	if !ok || st.view() == nil {
		return nil, false
	}
	return st.view().Clone(), true
}

// Status reports the state machine of one goal.
func (c *Controller) Status(goalID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.goals[goalID]
	if !ok {
		return Status{}
	}
	return Status{Pending: st.pending(), XPDelta: st.xpDelta, InFlight: len(st.inFlight)}
}

// ToggleDay flips one calendar day of a habit or save goal.
func (c *Controller) ToggleDay(goalID, day string) (*goal.Goal, error) {
	return c.Apply(goalID, goal.ToggleDay(day, c.now().In(c.location)))
}

// ToggleItem flips one task or curriculum item.
func (c *Controller) ToggleItem(goalID, itemID string) (*goal.Goal, error) {
	return c.Apply(goalID, goal.ToggleItem(itemID))
}

// AdjustSavings changes a save goal's current amount.
func (c *Controller) AdjustSavings(goalID string, amount float64) (*goal.Goal, error) {
	return c.Apply(goalID, goal.AdjustSavings(amount, c.now()))
}

// Apply computes the next value from the current view, publishes it as the
// pending override and starts the write. Mutation errors are returned
// synchronously and nothing is written.
func (c *Controller) Apply(goalID string, m goal.Mutation) (*goal.Goal, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	st, ok := c.goals[goalID]
	if !ok || st.server == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownGoal, goalID)
	}
	next, err := goal.Apply(st.view(), m)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	st.override = next
	st.xpDelta = next.XPEarned - st.server.XPEarned
	st.converging = false
	delta := st.xpDelta
	opID := c.startWrite(st, next)
	c.mu.Unlock()

	c.logger.Debug(logging.WithGoalID(c.ctx, goalID), "optimistic update",
		zap.String("op_id", opID),
		zap.Int("xp_delta", delta))
	c.changed(goalID)
	return next.Clone(), nil
}

// startWrite registers an operation and issues the write. Caller holds mu.
func (c *Controller) startWrite(st *state, value *goal.Goal) string {
	opID := uuid.NewString()
	st.inFlight[opID] = struct{}{}
	c.wg.Add(1)
	go c.write(value.ID, opID, value.Clone())
	return opID
}

func (c *Controller) write(goalID, opID string, value *goal.Goal) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	ctx = logging.WithGoalID(ctx, goalID)
	ctx, span := c.tracer.Start(ctx, "tracker.write")
	span.SetAttributes(attribute.String("goal.id", goalID), attribute.String("op.id", opID))
	defer span.End()

	saved, err := c.writer.SaveGoal(ctx, value)
	if err == nil && saved == nil {
		err = fmt.Errorf("writer returned no goal")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	st := c.goals[goalID]
	delete(st.inFlight, opID)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		st.reset()
		c.mu.Unlock()

		c.logger.Warn(ctx, "optimistic write failed, reverted", zap.String("op_id", opID), zap.Error(err))
		if c.onError != nil {
			c.onError(goalID, err)
		}
		c.changed(goalID)
		return
	}

	st.server = saved.Clone()
	if len(st.inFlight) == 0 {
		c.reconcile(ctx, st)
	}
	c.mu.Unlock()
	c.changed(goalID)
}

// reconcile runs when the last write of a goal resolved. Caller holds mu.
func (c *Controller) reconcile(ctx context.Context, st *state) {
	switch {
	case !st.pending():
	case goal.SameData(st.server, st.override):
		st.reset()
	case st.converging:
		c.logger.Warn(ctx, "server value still differs after convergence write, accepting server")
		st.reset()
	default:
		// A stale response landed last. Re-send the override so the store
		// ends up with what the user sees.
		st.converging = true
		opID := c.startWrite(st, st.override)
		c.logger.Debug(ctx, "convergence write", zap.String("op_id", opID))
	}
}

func (c *Controller) changed(goalID string) {
	if c.onChange != nil {
		c.onChange(goalID)
	}
}

// Close cancels in-flight writes and waits for them. Responses that arrive
// afterwards do not touch state.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
