package goal

import (
	"errors"
	"fmt"
	"time"
)

// Category tags the four goal variants.
type Category string

const (
	CategoryHabit   Category = "habit"
	CategoryProject Category = "project"
	CategoryLearn   Category = "learn"
	CategorySave    Category = "save"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryHabit, CategoryProject, CategoryLearn, CategorySave}

// ParseCategory validates a category tag.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryHabit, CategoryProject, CategoryLearn, CategorySave:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

var (
	ErrUnknownCategory = errors.New("unknown goal category")
	ErrWrongCategory   = errors.New("operation does not apply to goal category")
	ErrDateOutOfRange  = errors.New("date is before goal creation or after today")
	ErrInvalidDate     = errors.New("invalid date")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidGoal     = errors.New("invalid goal")
)

// Goal is the base record shared by all categories. Category-specific
// progress data lives in Details.
type Goal struct {
	ID          string
	UserID      string
	Title       string
	Description string
	CreatedAt   time.Time
	CompletedAt *time.Time
	XPEarned    int
	UpdatedAt   time.Time
	Details     Details
}

// Category returns the variant tag carried by the goal's details.
func (g *Goal) Category() Category {
	if g == nil || g.Details == nil {
		return ""
	}
	return g.Details.Category()
}

// IsCompleted reports whether the one-time completion transition happened.
func (g *Goal) IsCompleted() bool {
	return g != nil && g.CompletedAt != nil
}

// Clone returns a deep copy.
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	c := *g
	if g.CompletedAt != nil {
		t := *g.CompletedAt
		c.CompletedAt = &t
	}
	if g.Details != nil {
		c.Details = g.Details.Clone()
	}
	return &c
}

// Validate checks the base shape and the variant's own constraints.
func (g *Goal) Validate() error {
	if g.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidGoal)
	}
	if g.Details == nil {
		return fmt.Errorf("%w: details are required", ErrInvalidGoal)
	}
	if g.XPEarned < 0 {
		return fmt.Errorf("%w: xp cannot be negative", ErrInvalidGoal)
	}
	return g.Details.validate()
}

// Details is the closed set of category payloads. The unexported method
// keeps implementations inside this package: HabitDetails, ProjectDetails,
// LearnDetails and SaveDetails.
type Details interface {
	Category() Category

	// XP derives the goal's experience from its completion data.
	XP() int

	// Completed is the category completion predicate.
	Completed() bool

	// Progress is a derived 0..100 percentage.
	Progress() int

	Clone() Details

	validate() error
}

// Item is an ordered checklist entry (project task or curriculum item).
type Item struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Order     int    `json:"order"`
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func countCompleted(items []Item) int {
	n := 0
	for _, it := range items {
		if it.Completed {
			n++
		}
	}
	return n
}

func allCompleted(items []Item) bool {
	return len(items) > 0 && countCompleted(items) == len(items)
}

func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	p := part * 100 / whole
	if p > 100 {
		return 100
	}
	return p
}

func toggleItem(items []Item, id string) ([]Item, error) {
	out := cloneItems(items)
	for i := range out {
		if out[i].ID == id {
			out[i].Completed = !out[i].Completed
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

func validateItems(items []Item, kind string) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.ID == "" {
			return fmt.Errorf("%w: %s without id", ErrInvalidGoal, kind)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate %s id %s", ErrInvalidGoal, kind, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
