package goal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func day(offset int) string {
	return testToday.AddDate(0, 0, offset).Format(DayLayout)
}

func newHabit(dates ...string) *Goal {
	target := 5
	return &Goal{
		ID:        "g-habit",
		UserID:    "u-1",
		Title:     "Meditate",
		CreatedAt: testToday.AddDate(0, 0, -30),
		Details: &HabitDetails{
			Frequency:      [7]bool{true, true, true, true, true, false, false},
			TargetDays:     &target,
			CompletedDates: dates,
		},
	}
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name  string
		dates []string
		want  int
	}{
		{"empty", nil, 0},
		{"today missing", []string{day(-1), day(-2)}, 0},
		{"only today", []string{day(0)}, 1},
		{"gap breaks run", []string{day(0), day(-1), day(-2), day(-4)}, 3},
		{"unsorted with duplicates", []string{day(-1), day(0), day(-1), day(-2)}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.dates, testToday))
		})
	}
}

func TestLongestStreak(t *testing.T) {
	dates := []string{"2026-01-10", "2026-01-01", "2026-01-02", "2026-01-03", "2026-01-04", "2026-01-05"}
	assert.Equal(t, 5, LongestStreak(dates))
	assert.Equal(t, 0, LongestStreak(nil))
	assert.Equal(t, 1, LongestStreak([]string{"2026-01-01", "2026-01-03"}))
	assert.Equal(t, 3, LongestStreak([]string{"2025-12-31", "2026-01-01", "2026-01-02"}), "runs cross year boundaries")
}

func TestToggleDay_HabitXPFollowsDates(t *testing.T) {
	g := newHabit()
	var err error
	for _, d := range []string{day(0), day(-1), day(-2), day(-1), day(-5)} {
		g, err = Apply(g, ToggleDay(d, testToday))
		require.NoError(t, err)
		habit := g.Details.(*HabitDetails)
		assert.Equal(t, len(habit.CompletedDates), g.XPEarned)
	}
	assert.Equal(t, []string{day(-5), day(-2), day(0)}, g.Details.(*HabitDetails).CompletedDates)
}

func TestToggleDay_RejectsOutOfRange(t *testing.T) {
	g := newHabit()

	_, err := Apply(g, ToggleDay(day(1), testToday))
	assert.ErrorIs(t, err, ErrDateOutOfRange)

	_, err = Apply(g, ToggleDay(day(-31), testToday))
	assert.ErrorIs(t, err, ErrDateOutOfRange)

	_, err = Apply(g, ToggleDay("15/03/2026", testToday))
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	g := newHabit(day(-1))
	_, err := Apply(g, ToggleDay(day(0), testToday))
	require.NoError(t, err)
	assert.Equal(t, []string{day(-1)}, g.Details.(*HabitDetails).CompletedDates)
}

func TestToggleItem(t *testing.T) {
	g := &Goal{
		Title: "Ship v1",
		Details: &ProjectDetails{Tasks: []Item{
			{ID: "t1", Title: "design", Order: 0},
			{ID: "t2", Title: "build", Order: 1},
		}},
	}

	next, err := Apply(g, ToggleItem("t1"))
	require.NoError(t, err)
	assert.Equal(t, 5, next.XPEarned)
	assert.Equal(t, 50, next.Details.Progress())
	assert.False(t, next.Details.Completed())

	next, err = Apply(next, ToggleItem("t2"))
	require.NoError(t, err)
	assert.Equal(t, 10, next.XPEarned)
	assert.True(t, next.Details.Completed())

	next, err = Apply(next, ToggleItem("t1"))
	require.NoError(t, err)
	assert.Equal(t, 5, next.XPEarned)

	_, err = Apply(next, ToggleItem("missing"))
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = Apply(newHabit(), ToggleItem("t1"))
	assert.ErrorIs(t, err, ErrWrongCategory)
}

func TestCompletionPredicates(t *testing.T) {
	t.Run("habit without target never completes", func(t *testing.T) {
		h := &HabitDetails{CompletedDates: []string{day(0), day(-1)}}
		assert.False(t, h.Completed())
	})
	t.Run("habit reaches target", func(t *testing.T) {
		n := 2
		h := &HabitDetails{TargetDays: &n, CompletedDates: []string{day(0), day(-1)}}
		assert.True(t, h.Completed())
		assert.Equal(t, 100, h.Progress())
	})
	t.Run("empty learn is not complete", func(t *testing.T) {
		assert.False(t, (&LearnDetails{}).Completed())
	})
	t.Run("save reaches target", func(t *testing.T) {
		s := &SaveDetails{TargetAmount: 100, CurrentAmount: 100}
		assert.True(t, s.Completed())
		s.CurrentAmount = 99.5
		assert.False(t, s.Completed())
		assert.Equal(t, 99, s.Progress())
	})
}

func TestSaveDetails(t *testing.T) {
	created := testToday.AddDate(0, 0, -10)
	g := &Goal{
		Title:     "Emergency fund",
		CreatedAt: created,
		Details: &SaveDetails{
			TargetAmount: 100,
			Deadline:     created.AddDate(0, 0, 10),
		},
	}

	next, err := Apply(g, ToggleDay(day(0), testToday))
	require.NoError(t, err)
	s := next.Details.(*SaveDetails)
	assert.InDelta(t, 10.0, s.CurrentAmount, 0.0001)
	assert.Equal(t, 1, next.XPEarned)

	next, err = Apply(next, AdjustSavings(25, testToday))
	require.NoError(t, err)
	assert.InDelta(t, 35.0, next.Details.(*SaveDetails).CurrentAmount, 0.0001)
	assert.Equal(t, 2, next.XPEarned)

	next, err = Apply(next, AdjustSavings(-50, testToday))
	require.NoError(t, err)
	assert.Equal(t, 0.0, next.Details.(*SaveDetails).CurrentAmount, "amount floors at zero")
	assert.Equal(t, 1, next.XPEarned)

	next, err = Apply(next, ToggleDay(day(0), testToday))
	require.NoError(t, err)
	assert.Equal(t, 0.0, next.Details.(*SaveDetails).CurrentAmount)
	assert.Equal(t, 0, next.XPEarned, "xp floors at zero")

	_, err = Apply(next, AdjustSavings(0, testToday))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCompleteNext(t *testing.T) {
	t.Run("habit marks today once", func(t *testing.T) {
		g, err := Apply(newHabit(), CompleteNext(testToday))
		require.NoError(t, err)
		assert.Equal(t, []string{day(0)}, g.Details.(*HabitDetails).CompletedDates)

		_, err = Apply(g, CompleteNext(testToday))
		assert.ErrorIs(t, err, ErrNothingToComplete)
	})
	t.Run("learn completes lowest order first", func(t *testing.T) {
		g := &Goal{Title: "Go", Details: &LearnDetails{CurriculumItems: []Item{
			{ID: "b", Order: 2},
			{ID: "a", Order: 1},
		}}}
		next, err := Apply(g, CompleteNext(testToday))
		require.NoError(t, err)
		items := next.Details.(*LearnDetails).CurriculumItems
		assert.False(t, items[0].Completed)
		assert.True(t, items[1].Completed)
	})
}

func TestTransform_SaveRoundTrip(t *testing.T) {
	deadline := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	g := &Goal{
		ID:          "g-save",
		UserID:      "u-1",
		Title:       "Bike",
		Description: "new bike",
		CreatedAt:   created,
		XPEarned:    2,
		UpdatedAt:   created,
		Details: &SaveDetails{
			TargetAmount:     500,
			CurrentAmount:    42.5,
			Deadline:         deadline,
			SaveDates:        []string{"2026-01-02", "2026-01-01"},
			SpendingTriggers: []string{"coffee"},
		},
	}

	row, err := ToRow(g)
	require.NoError(t, err)
	assert.Equal(t, "save", row.Category)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(row.Data, &raw))
	assert.Equal(t, 500.0, raw["targetAmount"])
	assert.Contains(t, raw, "SaveDates")

	back, err := FromRow(row)
	require.NoError(t, err)
	s, ok := back.Details.(*SaveDetails)
	require.True(t, ok)
	assert.Equal(t, 500.0, s.TargetAmount)
	assert.Equal(t, 42.5, s.CurrentAmount)
	assert.True(t, s.Deadline.Equal(deadline))
	assert.Equal(t, []string{"2026-01-01", "2026-01-02"}, s.SaveDates)
	assert.Equal(t, []string{"coffee"}, s.SpendingTriggers)
	assert.Equal(t, g.Title, back.Title)
	assert.Equal(t, g.XPEarned, back.XPEarned)
}

func TestTransform_ProgressIsDerived(t *testing.T) {
	row := &Row{
		ID:       "g-1",
		Category: "learn",
		Data:     json.RawMessage(`{"curriculumItems":[{"id":"a","title":"x","completed":true,"order":0},{"id":"b","title":"y","completed":false,"order":1}],"progress":99}`),
	}
	g, err := FromRow(row)
	require.NoError(t, err)
	assert.Equal(t, 50, g.Details.Progress())

	out, err := ToRow(g)
	require.NoError(t, err)
	assert.Contains(t, string(out.Data), `"progress":50`)
}

func TestTransform_UnknownCategory(t *testing.T) {
	_, err := FromRow(&Row{ID: "g-1", Category: "fitness", Data: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestGoalJSON(t *testing.T) {
	g := newHabit(day(0))
	g.XPEarned = 1
	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"category":"habit"`)
	assert.Contains(t, string(b), `"completedDates":["2026-03-15"]`)

	var back Goal
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, CategoryHabit, back.Category())
	assert.Equal(t, 5, *back.Details.(*HabitDetails).TargetDays)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (&Goal{Details: &LearnDetails{}}).Validate(), ErrInvalidGoal)
	assert.ErrorIs(t, (&Goal{Title: "x", Details: &SaveDetails{}}).Validate(), ErrInvalidGoal)
	assert.ErrorIs(t, (&Goal{Title: "x", Details: &ProjectDetails{Tasks: []Item{{ID: "a"}, {ID: "a"}}}}).Validate(), ErrInvalidGoal)
	assert.NoError(t, newHabit(day(0)).Validate())
}

func TestNextTier(t *testing.T) {
	tier, ok := NextTier(1, nil)
	require.True(t, ok)
	assert.Equal(t, TierBronze, tier)

	_, ok = NextTier(5, []Tier{TierBronze})
	assert.False(t, ok)

	tier, ok = NextTier(55, []Tier{TierBronze})
	require.True(t, ok)
	assert.Equal(t, TierGold, tier, "highest unearned tier wins")

	tier, ok = NextTier(55, []Tier{TierBronze, TierGold})
	require.True(t, ok)
	assert.Equal(t, TierSilver, tier)

	_, ok = NextTier(0, nil)
	assert.False(t, ok)
}

func TestLevel(t *testing.T) {
	assert.Equal(t, 1, Level(0))
	assert.Equal(t, 1, Level(99))
	assert.Equal(t, 2, Level(100))
	assert.Equal(t, 2, Level(399))
	assert.Equal(t, 3, Level(400))
	assert.Equal(t, 11, Level(10000))
}

func TestSameData(t *testing.T) {
	a := newHabit(day(-1), day(0))
	b := a.Clone()
	b.XPEarned = 99
	b.UpdatedAt = testToday
	assert.True(t, SameData(a, b))

	c, err := Apply(a, ToggleDay(day(-2), testToday))
	require.NoError(t, err)
	assert.False(t, SameData(a, c))

	assert.False(t, SameData(a, &Goal{Details: &LearnDetails{}}))
	assert.True(t, SameData(nil, nil))
	assert.False(t, SameData(a, nil))
}
