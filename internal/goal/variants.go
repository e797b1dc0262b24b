package goal

import (
	"fmt"
	"math"
	"time"
)

// XPPerItem is awarded for each completed project task or curriculum item.
const XPPerItem = 5

// HabitDetails tracks a recurring habit by completed calendar days.
type HabitDetails struct {
	// Frequency holds the scheduled weekdays, Monday first.
	Frequency      [7]bool
	TargetDays     *int
	CompletedDates []string
}

func (*HabitDetails) Category() Category { return CategoryHabit }

func (h *HabitDetails) XP() int { return len(h.CompletedDates) }

func (h *HabitDetails) Completed() bool {
	return h.TargetDays != nil && len(h.CompletedDates) >= *h.TargetDays
}

func (h *HabitDetails) Progress() int {
	if h.TargetDays == nil {
		return 0
	}
	return percent(len(h.CompletedDates), *h.TargetDays)
}

func (h *HabitDetails) Clone() Details {
	c := *h
	if h.TargetDays != nil {
		n := *h.TargetDays
		c.TargetDays = &n
	}
	c.CompletedDates = append([]string{}, h.CompletedDates...)
	return &c
}

func (h *HabitDetails) validate() error {
	if h.TargetDays != nil && *h.TargetDays <= 0 {
		return fmt.Errorf("%w: targetDays must be positive", ErrInvalidGoal)
	}
	for _, d := range h.CompletedDates {
		if _, err := ParseDay(d); err != nil {
			return err
		}
	}
	return nil
}

// ProjectDetails tracks a project through an ordered task list.
type ProjectDetails struct {
	Tasks   []Item
	DueDate *time.Time
}

func (*ProjectDetails) Category() Category { return CategoryProject }

func (p *ProjectDetails) XP() int { return XPPerItem * countCompleted(p.Tasks) }

func (p *ProjectDetails) Completed() bool { return allCompleted(p.Tasks) }

func (p *ProjectDetails) Progress() int { return percent(countCompleted(p.Tasks), len(p.Tasks)) }

func (p *ProjectDetails) Clone() Details {
	c := &ProjectDetails{Tasks: cloneItems(p.Tasks)}
	if p.DueDate != nil {
		t := *p.DueDate
		c.DueDate = &t
	}
	return c
}

func (p *ProjectDetails) validate() error { return validateItems(p.Tasks, "task") }

// DueWithin reports whether the project is due within d of now.
func (p *ProjectDetails) DueWithin(now time.Time, d time.Duration) bool {
	return p.DueDate != nil && p.DueDate.Sub(now) <= d
}

// LearnDetails tracks a learning goal through a curriculum.
type LearnDetails struct {
	CurriculumItems []Item
}

func (*LearnDetails) Category() Category { return CategoryLearn }

func (l *LearnDetails) XP() int { return XPPerItem * countCompleted(l.CurriculumItems) }

func (l *LearnDetails) Completed() bool { return allCompleted(l.CurriculumItems) }

func (l *LearnDetails) Progress() int {
	return percent(countCompleted(l.CurriculumItems), len(l.CurriculumItems))
}

func (l *LearnDetails) Clone() Details {
	return &LearnDetails{CurriculumItems: cloneItems(l.CurriculumItems)}
}

func (l *LearnDetails) validate() error { return validateItems(l.CurriculumItems, "curriculum item") }

// Adjustment is a manual edit of a save goal's current amount.
type Adjustment struct {
	Amount float64   `json:"amount"`
	At     time.Time `json:"at"`
}

// SaveDetails tracks a savings target.
type SaveDetails struct {
	TargetAmount     float64
	CurrentAmount    float64
	Deadline         time.Time
	SaveDates        []string
	SpendingTriggers []string
	Adjustments      []Adjustment
}

func (*SaveDetails) Category() Category { return CategorySave }

// XP is one point per saved day plus the sign of every manual adjustment,
// floored at zero.
func (s *SaveDetails) XP() int {
	xp := len(s.SaveDates)
	for _, a := range s.Adjustments {
		switch {
		case a.Amount > 0:
			xp++
		case a.Amount < 0:
			xp--
		}
	}
	if xp < 0 {
		return 0
	}
	return xp
}

func (s *SaveDetails) Completed() bool {
	return s.TargetAmount > 0 && s.CurrentAmount >= s.TargetAmount
}

func (s *SaveDetails) Progress() int {
	if s.TargetAmount <= 0 {
		return 0
	}
	p := int(math.Floor(s.CurrentAmount / s.TargetAmount * 100))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// DailyAmount spreads the target evenly over the days from createdAt to the
// deadline, at least one day.
func (s *SaveDetails) DailyAmount(createdAt time.Time) float64 {
	days := int(math.Ceil(s.Deadline.Sub(createdAt).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return s.TargetAmount / float64(days)
}

func (s *SaveDetails) Clone() Details {
	c := *s
	c.SaveDates = append([]string{}, s.SaveDates...)
	c.SpendingTriggers = append([]string(nil), s.SpendingTriggers...)
	c.Adjustments = append([]Adjustment(nil), s.Adjustments...)
	return &c
}

func (s *SaveDetails) validate() error {
	if !(s.TargetAmount > 0) {
		return fmt.Errorf("%w: targetAmount must be positive", ErrInvalidGoal)
	}
	if s.CurrentAmount < 0 || math.IsNaN(s.CurrentAmount) {
		return fmt.Errorf("%w: currentAmount cannot be negative", ErrInvalidGoal)
	}
	for _, d := range s.SaveDates {
		if _, err := ParseDay(d); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Details = (*HabitDetails)(nil)
	_ Details = (*ProjectDetails)(nil)
	_ Details = (*LearnDetails)(nil)
	_ Details = (*SaveDetails)(nil)
)
