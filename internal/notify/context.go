package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
)

// MessageContext is what a reminder can talk about. Templates reference
// these fields by name.
type MessageContext struct {
	Category    goal.Category
	Title       string
	Progress    int
	Streak      int
	DaysDone    int
	TargetDays  int
	Done        int
	Total       int
	NextItem    string
	Remaining   string
	DaysLeft    int
	DailyTarget string
}

// BuildContext derives the message context of g as of today.
func BuildContext(g *goal.Goal, today time.Time) MessageContext {
	mc := MessageContext{Category: g.Category(), Title: g.Title}
	if g.Details == nil {
		return mc
	}
	mc.Progress = g.Details.Progress()

	switch d := g.Details.(type) {
	case *goal.HabitDetails:
		mc.Streak = goal.CurrentStreak(d.CompletedDates, today)
		// Yesterday's streak is still alive until today ends.
		if mc.Streak == 0 {
			mc.Streak = goal.CurrentStreak(d.CompletedDates, today.AddDate(0, 0, -1))
		}
		mc.DaysDone = len(d.CompletedDates)
		if d.TargetDays != nil {
			mc.TargetDays = *d.TargetDays
		}
	case *goal.ProjectDetails:
		mc.Done, mc.Total, mc.NextItem = itemStats(d.Tasks)
		if d.DueDate != nil {
			mc.DaysLeft = daysUntil(today, *d.DueDate)
		}
	case *goal.LearnDetails:
		mc.Done, mc.Total, mc.NextItem = itemStats(d.CurriculumItems)
	case *goal.SaveDetails:
		remaining := d.TargetAmount - d.CurrentAmount
		if remaining < 0 {
			remaining = 0
		}
		mc.Remaining = money(remaining)
		mc.DailyTarget = money(d.DailyAmount(g.CreatedAt))
		mc.DaysLeft = daysUntil(today, d.Deadline)
		mc.DaysDone = len(d.SaveDates)
	}
	return mc
}

func itemStats(items []goal.Item) (done, total int, next string) {
	sorted := append([]goal.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, it := range sorted {
		if it.Completed {
			done++
		} else if next == "" {
			next = it.Title
		}
	}
	return done, len(items), next
}

func daysUntil(today, t time.Time) int {
	if t.IsZero() {
		return 0
	}
	n, err := DaysBetween(goal.Day(today), goal.Day(t.In(today.Location())))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func money(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	return strings.TrimSuffix(s, ".00")
}

// Describe renders the context as prompt lines for the model.
func (mc MessageContext) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nCategory: %s\nProgress: %d%%\n", mc.Title, mc.Category, mc.Progress)
	switch mc.Category {
	case goal.CategoryHabit:
		fmt.Fprintf(&b, "Current streak: %d days\nDays completed: %d\n", mc.Streak, mc.DaysDone)
		if mc.TargetDays > 0 {
			fmt.Fprintf(&b, "Target days: %d\n", mc.TargetDays)
		}
	case goal.CategoryProject, goal.CategoryLearn:
		fmt.Fprintf(&b, "Completed: %d of %d\n", mc.Done, mc.Total)
		if mc.NextItem != "" {
			fmt.Fprintf(&b, "Next up: %s\n", mc.NextItem)
		}
		if mc.DaysLeft > 0 {
			fmt.Fprintf(&b, "Days until due: %d\n", mc.DaysLeft)
		}
	case goal.CategorySave:
		fmt.Fprintf(&b, "Amount remaining: %s\nSuggested daily amount: %s\nDays left: %d\n", mc.Remaining, mc.DailyTarget, mc.DaysLeft)
	}
	return b.String()
}
