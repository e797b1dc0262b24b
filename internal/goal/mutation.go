package goal

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrNothingToComplete is returned by CompleteNext when no unit of progress is
// left for today.
var ErrNothingToComplete = errors.New("nothing left to complete")

// Mutation derives the next goal value from the current one. Implementations
// never modify their input; the result has XPEarned recomputed.
type Mutation func(g *Goal) (*Goal, error)

// Apply runs m against a copy of g.
func Apply(g *Goal, m Mutation) (*Goal, error) {
	if g == nil || g.Details == nil {
		return nil, fmt.Errorf("%w: missing details", ErrInvalidGoal)
	}
	next, err := m(g.Clone())
	if err != nil {
		return nil, err
	}
	next.XPEarned = next.Details.XP()
	return next, nil
}

// ToggleDay adds or removes a calendar day from a habit's completed dates or
// a save goal's saved dates. Days before the goal was created or after today
// are rejected. For save goals the current amount moves by the daily amount.
func ToggleDay(day string, today time.Time) Mutation {
	return func(g *Goal) (*Goal, error) {
		if err := dayInRange(day, g.CreatedAt, today); err != nil {
			return nil, err
		}
		switch d := g.Details.(type) {
		case *HabitDetails:
			d.CompletedDates = toggleDay(d.CompletedDates, day)
		case *SaveDetails:
			daily := d.DailyAmount(g.CreatedAt)
			if containsDay(normalizeDays(d.SaveDates), day) {
				d.CurrentAmount = math.Max(0, d.CurrentAmount-daily)
			} else {
				d.CurrentAmount += daily
			}
			d.SaveDates = toggleDay(d.SaveDates, day)
		default:
			return nil, fmt.Errorf("%w: toggle day on %s", ErrWrongCategory, g.Category())
		}
		return g, nil
	}
}

// ToggleItem flips the completion of a project task or curriculum item.
func ToggleItem(id string) Mutation {
	return func(g *Goal) (*Goal, error) {
		var err error
		switch d := g.Details.(type) {
		case *ProjectDetails:
			d.Tasks, err = toggleItem(d.Tasks, id)
		case *LearnDetails:
			d.CurriculumItems, err = toggleItem(d.CurriculumItems, id)
		default:
			err = fmt.Errorf("%w: toggle item on %s", ErrWrongCategory, g.Category())
		}
		if err != nil {
			return nil, err
		}
		return g, nil
	}
}

// AdjustSavings records a manual change of a save goal's current amount.
// The amount never drops below zero.
func AdjustSavings(amount float64, at time.Time) Mutation {
	return func(g *Goal) (*Goal, error) {
		d, ok := g.Details.(*SaveDetails)
		if !ok {
			return nil, fmt.Errorf("%w: adjust savings on %s", ErrWrongCategory, g.Category())
		}
		if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
		}
		d.CurrentAmount = math.Max(0, d.CurrentAmount+amount)
		d.Adjustments = append(d.Adjustments, Adjustment{Amount: amount, At: at.UTC()})
		return g, nil
	}
}

// CompleteNext records one unit of progress for today: habits and save goals
// mark today, projects and curricula complete their next open item by order.
func CompleteNext(today time.Time) Mutation {
	return func(g *Goal) (*Goal, error) {
		switch d := g.Details.(type) {
		case *HabitDetails:
			if containsDay(normalizeDays(d.CompletedDates), Day(today)) {
				return nil, ErrNothingToComplete
			}
		case *SaveDetails:
			if containsDay(normalizeDays(d.SaveDates), Day(today)) {
				return nil, ErrNothingToComplete
			}
		case *ProjectDetails:
			id, ok := nextOpen(d.Tasks)
			if !ok {
				return nil, ErrNothingToComplete
			}
			return ToggleItem(id)(g)
		case *LearnDetails:
			id, ok := nextOpen(d.CurriculumItems)
			if !ok {
				return nil, ErrNothingToComplete
			}
			return ToggleItem(id)(g)
		}
		return ToggleDay(Day(today), today)(g)
	}
}

func nextOpen(items []Item) (string, bool) {
	sorted := cloneItems(items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, it := range sorted {
		if !it.Completed {
			return it.ID, true
		}
	}
	return "", false
}
