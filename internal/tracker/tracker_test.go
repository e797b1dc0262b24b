package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

var testToday = time.Date(2026, 4, 20, 12, 0, 0, 0, time.UTC)

func day(offset int) string {
	return goal.Day(testToday.AddDate(0, 0, offset))
}

func habitGoal(dates ...string) *goal.Goal {
	return &goal.Goal{
		ID:        "g1",
		UserID:    "u1",
		Title:     "Read",
		CreatedAt: testToday.AddDate(0, 0, -10),
		XPEarned:  len(dates),
		Details:   &goal.HabitDetails{CompletedDates: dates},
	}
}

func dates(g *goal.Goal) []string {
	return g.Details.(*goal.HabitDetails).CompletedDates
}

// pendingWrite is one call blocked inside gatedWriter.
type pendingWrite struct {
	value   *goal.Goal
	release chan error
}

// gatedWriter blocks every write until the test releases it, so writes can
// be resolved in any order.
type gatedWriter struct {
	calls chan *pendingWrite
}

func newGatedWriter() *gatedWriter {
	return &gatedWriter{calls: make(chan *pendingWrite, 16)}
}

func (w *gatedWriter) SaveGoal(ctx context.Context, g *goal.Goal) (*goal.Goal, error) {
	p := &pendingWrite{value: g.Clone(), release: make(chan error, 1)}
	w.calls <- p
	select {
	case err := <-p.release:
		if err != nil {
			return nil, err
		}
		return p.value, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *gatedWriter) next(t *testing.T) *pendingWrite {
	t.Helper()
	select {
	case p := <-w.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no write issued")
		return nil
	}
}

// collect gathers n writes keyed by their comma-joined dates.
func (w *gatedWriter) collect(t *testing.T, n int) map[string]*pendingWrite {
	t.Helper()
	out := make(map[string]*pendingWrite, n)
	for i := 0; i < n; i++ {
		p := w.next(t)
		out[strings.Join(dates(p.value), ",")] = p
	}
	require.Len(t, out, n)
	return out
}

func newController(t *testing.T, w Writer, opts ...Option) *Controller {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return testToday }),
		WithLocation(time.UTC),
	}, opts...)
	c, err := New(w, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func waitInFlight(t *testing.T, c *Controller, goalID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status(goalID).InFlight == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNew_NilWriter(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestApply_PublishesOverrideImmediately(t *testing.T) {
	w := newGatedWriter()
	c := newController(t, w)
	c.SetServer(habitGoal(day(-1)))

	next, err := c.ToggleDay("g1", day(0))
	require.NoError(t, err)
	assert.Equal(t, []string{day(-1), day(0)}, dates(next))

	view, ok := c.View("g1")
	require.True(t, ok)
	assert.Equal(t, []string{day(-1), day(0)}, dates(view))
	assert.Equal(t, Status{Pending: true, XPDelta: 1, InFlight: 1}, c.Status("g1"))

	w.next(t).release <- nil
	require.Eventually(t, func() bool { return !c.Status("g1").Pending }, 2*time.Second, 5*time.Millisecond)

	view, _ = c.View("g1")
	assert.Equal(t, 2, view.XPEarned)
	assert.Equal(t, Status{}, c.Status("g1"))
}

func TestToggleSequence_OutOfOrderResolution(t *testing.T) {
	w := newGatedWriter()
	c := newController(t, w)
	c.SetServer(habitGoal())

	a, b := day(-2), day(-1)
	for _, d := range []string{a, b, a} {
		_, err := c.ToggleDay("g1", d)
		require.NoError(t, err)
	}
	writes := w.collect(t, 3)
	w1, w2, w3 := writes[a], writes[a+","+b], writes[b]
	require.NotNil(t, w1)
	require.NotNil(t, w2)
	require.NotNil(t, w3)

	view, _ := c.View("g1")
	assert.Equal(t, []string{b}, dates(view))

	// Newest write resolves first, the stale {A,B} lands last.
	w3.release <- nil
	waitInFlight(t, c, "g1", 2)
	w1.release <- nil
	waitInFlight(t, c, "g1", 1)
	w2.release <- nil

	view, _ = c.View("g1")
	assert.Equal(t, []string{b}, dates(view), "a stale response never replaces the pending view")

	converge := w.next(t)
	assert.Equal(t, []string{b}, dates(converge.value))
	converge.release <- nil

	require.Eventually(t, func() bool { return !c.Status("g1").Pending }, 2*time.Second, 5*time.Millisecond)
	view, _ = c.View("g1")
	assert.Equal(t, []string{b}, dates(view))
	assert.Equal(t, 1, view.XPEarned)
}

func TestToggleSequence_InOrderNeedsNoConvergence(t *testing.T) {
	w := newGatedWriter()
	c := newController(t, w)
	c.SetServer(habitGoal())

	a, b := day(-3), day(-2)
	for _, d := range []string{a, b, a} {
		_, err := c.ToggleDay("g1", d)
		require.NoError(t, err)
	}
	writes := w.collect(t, 3)
	for i, key := range []string{a, a + "," + b, b} {
		writes[key].release <- nil
		waitInFlight(t, c, "g1", 2-i)
	}
	assert.False(t, c.Status("g1").Pending)
	assert.Empty(t, w.calls)
}

func TestWriteFailure_RevertsAndReports(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	w := newGatedWriter()
	c := newController(t, w, WithErrorHandler(func(goalID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "g1", goalID)
		reported = append(reported, err)
	}))
	c.SetServer(habitGoal(day(-1)))

	_, err := c.ToggleDay("g1", day(0))
	require.NoError(t, err)

	boom := errors.New("store unreachable")
	w.next(t).release <- boom

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, reported[0], boom)

	view, _ := c.View("g1")
	assert.Equal(t, []string{day(-1)}, dates(view))
	assert.Equal(t, Status{}, c.Status("g1"))
}

func TestApply_RejectsOutOfRangeSynchronously(t *testing.T) {
	w := newGatedWriter()
	c := newController(t, w)
	c.SetServer(habitGoal())

	_, err := c.ToggleDay("g1", day(1))
	assert.ErrorIs(t, err, goal.ErrDateOutOfRange)
	_, err = c.ToggleDay("g1", day(-30))
	assert.ErrorIs(t, err, goal.ErrDateOutOfRange)

	assert.Empty(t, w.calls)
	assert.False(t, c.Status("g1").Pending)
}

func TestApply_UnknownGoal(t *testing.T) {
	c := newController(t, newGatedWriter())
	_, err := c.ToggleDay("missing", day(0))
	assert.ErrorIs(t, err, ErrUnknownGoal)
}

func TestClose_CancelsWritesAndFreezesState(t *testing.T) {
	w := newGatedWriter()
	var errs int
	c, err := New(w,
		WithClock(func() time.Time { return testToday }),
		WithLocation(time.UTC),
		WithErrorHandler(func(string, error) { errs++ }),
	)
	require.NoError(t, err)
	c.SetServer(habitGoal())

	_, err = c.ToggleDay("g1", day(0))
	require.NoError(t, err)
	w.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	assert.Equal(t, 0, errs, "cancelled writes after Close are not reported")
	assert.Equal(t, 1, c.Status("g1").InFlight)

	_, err = c.ToggleDay("g1", day(-1))
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, c.Close(ctx))
}

func TestSetServer_ReconcilesWhenIdle(t *testing.T) {
	w := newGatedWriter()
	c := newController(t, w)
	c.SetServer(habitGoal())

	_, err := c.ToggleDay("g1", day(0))
	require.NoError(t, err)

	// A refresh arriving mid-flight must not clear the override.
	c.SetServer(habitGoal(day(0)))
	assert.True(t, c.Status("g1").Pending)

	w.next(t).release <- nil
	require.Eventually(t, func() bool { return !c.Status("g1").Pending }, 2*time.Second, 5*time.Millisecond)
}

func TestChangeHandler(t *testing.T) {
	var mu sync.Mutex
	changes := 0
	w := newGatedWriter()
	c := newController(t, w, WithChangeHandler(func(string) {
		mu.Lock()
		changes++
		mu.Unlock()
	}))
	c.SetServer(habitGoal())
	_, err := c.ToggleDay("g1", day(0))
	require.NoError(t, err)
	w.next(t).release <- nil

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return changes == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServiceWriter_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "goaltrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := progress.NewService(st, progress.WithClock(func() time.Time { return testToday }))
	require.NoError(t, err)
	created, err := svc.CreateGoal(ctx, "u1", habitGoal())
	require.NoError(t, err)

	tl := logging.NewTestLogger()
	c := newController(t, ServiceWriter{Service: svc, UserID: "u1"}, WithLogger(tl.Logger))
	c.SetServer(created.Goal)

	for _, d := range []string{day(-2), day(-1), day(-2)} {
		_, err := c.ToggleDay(created.Goal.ID, d)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return !c.Status(created.Goal.ID).Pending && c.Status(created.Goal.ID).InFlight == 0
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := st.GetGoal(ctx, created.Goal.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{day(-1)}, dates(stored))
	assert.Equal(t, 1, stored.XPEarned)

	p, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.XP)
}
