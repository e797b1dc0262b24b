package progress

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goaltrack/internal/events"
	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/logging"
	"github.com/fyrsmithlabs/goaltrack/internal/store"
	"github.com/fyrsmithlabs/goaltrack/internal/telemetry"
)

var testNow = time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *store.Store
	recorder *events.Recorder
	tel      *telemetry.TestTelemetry
	logs     *logging.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "goaltrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &fixture{
		store:    st,
		recorder: events.NewRecorder(256),
		tel:      telemetry.NewTestTelemetry(),
		logs:     logging.NewTestLogger(),
	}
	f.svc, err = NewService(st,
		WithPublisher(f.recorder),
		WithTracer(f.tel.Tracer("progress-test")),
		WithLogger(f.logs.Logger),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	return f
}

func habit(target int, dates ...string) *goal.Goal {
	return &goal.Goal{
		Title:     "Stretch",
		CreatedAt: testNow.AddDate(0, 0, -20),
		Details:   &goal.HabitDetails{TargetDays: &target, CompletedDates: dates},
	}
}

func project(tasks ...goal.Item) *goal.Goal {
	return &goal.Goal{
		Title:     "Ship the shed",
		CreatedAt: testNow.AddDate(0, 0, -3),
		Details:   &goal.ProjectDetails{Tasks: tasks},
	}
}

func day(offset int) string {
	return goal.Day(testNow.AddDate(0, 0, offset))
}

func TestNewService_NilStore(t *testing.T) {
	_, err := NewService(nil)
	assert.Error(t, err)
}

func TestCreateGoal_AssignsIDsAndXP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreateGoal(ctx, "u1", project(
		goal.Item{Title: "Buy wood", Completed: true},
		goal.Item{Title: "Build frame"},
	))
	require.NoError(t, err)

	g := res.Goal
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "u1", g.UserID)
	assert.Equal(t, 5, g.XPEarned)
	assert.False(t, res.Completed)
	tasks := g.Details.(*goal.ProjectDetails).Tasks
	assert.NotEmpty(t, tasks[0].ID)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
	assert.Equal(t, 1, tasks[1].Order)

	assert.Equal(t, 5, res.Profile.XP)
	assert.Equal(t, 1, res.Profile.Level)
	f.tel.AssertSpanExists(t, "progress.create_goal")
}

func TestSaveGoal_RecomputesXPFromData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateGoal(ctx, "u1", habit(10, day(-1)))
	require.NoError(t, err)

	next := created.Goal.Clone()
	next.Details.(*goal.HabitDetails).CompletedDates = []string{day(-2), day(-1), day(0)}
	next.XPEarned = 999

	res, err := f.svc.SaveGoal(ctx, "u1", next)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Goal.XPEarned)
	assert.Equal(t, 3, res.Profile.XP)

	stored, err := f.store.GetGoal(ctx, created.Goal.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.XPEarned)
	assert.True(t, stored.CreatedAt.Equal(created.Goal.CreatedAt))
	f.tel.AssertSpanExists(t, "progress.save_goal")
}

func TestSaveGoal_CompletionIsOneTimeAndAwardsBronze(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateGoal(ctx, "u1", habit(2, day(-1)))
	require.NoError(t, err)
	require.Nil(t, created.Goal.CompletedAt)

	next := created.Goal.Clone()
	next.Details.(*goal.HabitDetails).CompletedDates = []string{day(-1), day(0)}
	res, err := f.svc.SaveGoal(ctx, "u1", next)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	require.NotNil(t, res.Goal.CompletedAt)
	require.Len(t, res.Medals, 1)
	assert.Equal(t, goal.TierBronze, res.Medals[0].Tier)
	assert.Equal(t, 2+10, res.Profile.XP)

	// Un-marking a day keeps the completion and the medal.
	undo := res.Goal.Clone()
	undo.Details.(*goal.HabitDetails).CompletedDates = []string{day(-1)}
	undone, err := f.svc.SaveGoal(ctx, "u1", undo)
	require.NoError(t, err)
	assert.False(t, undone.Completed)
	require.NotNil(t, undone.Goal.CompletedAt)
	assert.True(t, undone.Goal.CompletedAt.Equal(*res.Goal.CompletedAt))
	assert.True(t, undone.Profile.HasMedal(goal.CategoryHabit, goal.TierBronze))
	assert.Equal(t, 1+10, undone.Profile.XP)

	types := map[events.Type]int{}
	for _, e := range f.recorder.Drain() {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[events.GoalCompleted])
	assert.Equal(t, 1, types[events.MedalAwarded])
}

func TestSaveGoal_ClientCannotSetCompletedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateGoal(ctx, "u1", habit(5))
	require.NoError(t, err)

	next := created.Goal.Clone()
	forged := testNow
	next.CompletedAt = &forged
	res, err := f.svc.SaveGoal(ctx, "u1", next)
	require.NoError(t, err)
	assert.Nil(t, res.Goal.CompletedAt)
}

func TestSaveGoal_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateGoal(ctx, "owner", habit(5))
	require.NoError(t, err)

	_, err = f.svc.SaveGoal(ctx, "intruder", created.Goal)
	assert.ErrorIs(t, err, ErrForbidden)

	err = f.svc.DeleteGoal(ctx, "intruder", created.Goal.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.SaveGoal(ctx, "owner", &goal.Goal{ID: "missing", Title: "x", Details: &goal.HabitDetails{}})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveGoal_CategoryIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateGoal(ctx, "u1", habit(5))
	require.NoError(t, err)

	next := created.Goal.Clone()
	next.Details = &goal.LearnDetails{}
	_, err = f.svc.SaveGoal(ctx, "u1", next)
	assert.ErrorIs(t, err, goal.ErrWrongCategory)
}

func TestMedals_HighestUnearnedTierAndMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var seen []goal.Tier
	for i := 0; i < 11; i++ {
		created, err := f.svc.CreateGoal(ctx, "u1", project(goal.Item{Title: "only"}))
		require.NoError(t, err)

		next := created.Goal.Clone()
		next.Details.(*goal.ProjectDetails).Tasks[0].Completed = true
		res, err := f.svc.SaveGoal(ctx, "u1", next)
		require.NoError(t, err)
		require.True(t, res.Completed)

		tiers := res.Profile.Medals[goal.CategoryProject]
		assert.GreaterOrEqual(t, len(tiers), len(seen), "medals never shrink")
		seen = tiers
	}
	assert.Equal(t, []goal.Tier{goal.TierBronze, goal.TierSilver}, seen)

	p, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 11*5+10+100, p.XP)
}

func TestResyncProfile_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGoal(ctx, "u1", habit(1, day(0)))
	require.NoError(t, err)
	_, err = f.svc.CreateGoal(ctx, "u1", habit(30, day(-3), day(-2)))
	require.NoError(t, err)

	first, err := f.svc.ResyncProfile(ctx, "u1")
	require.NoError(t, err)
	second, err := f.svc.ResyncProfile(ctx, "u1")
	require.NoError(t, err)

	// habit completed on create: 1 + 2 goal XP + bronze 10
	assert.Equal(t, 13, first.XP)
	assert.Equal(t, first.XP, second.XP)
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Medals, second.Medals)
}

func TestDeleteGoal_ResyncsButKeepsMedals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateGoal(ctx, "u1", habit(1, day(0)))
	require.NoError(t, err)
	require.True(t, created.Completed)

	require.NoError(t, f.svc.DeleteGoal(ctx, "u1", created.Goal.ID))

	p, err := f.svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.XP)
	assert.True(t, p.HasMedal(goal.CategoryHabit, goal.TierBronze))

	_, err = f.store.GetGoal(ctx, created.Goal.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfile_CreatedOnFirstAccess(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Profile(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, 0, p.XP)
	assert.Equal(t, 1, p.Level)
}
