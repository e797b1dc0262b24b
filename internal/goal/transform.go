package goal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Row is the storage shape of a goal: base columns plus a JSON data column
// holding the category-specific payload.
type Row struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    string
	Data        json.RawMessage
	XPEarned    int
	CreatedAt   time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

type habitData struct {
	Frequency      [7]bool  `json:"frequency"`
	TargetDays     *int     `json:"targetDays,omitempty"`
	CompletedDates []string `json:"completedDates"`
}

type projectData struct {
	Tasks    []Item     `json:"tasks"`
	DueDate  *time.Time `json:"dueDate,omitempty"`
	Progress int        `json:"progress"`
}

type learnData struct {
	CurriculumItems []Item `json:"curriculumItems"`
	Progress        int    `json:"progress"`
}

type saveData struct {
	TargetAmount     float64      `json:"targetAmount"`
	CurrentAmount    float64      `json:"currentAmount"`
	Deadline         time.Time    `json:"deadline"`
	SaveDates        []string     `json:"SaveDates"`
	SpendingTriggers []string     `json:"spendingTriggers"`
	Adjustments      []Adjustment `json:"adjustments,omitempty"`
}

// EncodeDetails renders the JSON data column for d. Derived progress is
// written for readers of the raw row but is never read back.
func EncodeDetails(d Details) (json.RawMessage, error) {
	var v any
	switch d := d.(type) {
	case *HabitDetails:
		v = habitData{Frequency: d.Frequency, TargetDays: d.TargetDays, CompletedDates: nonNilDays(d.CompletedDates)}
	case *ProjectDetails:
		v = projectData{Tasks: nonNilItems(d.Tasks), DueDate: d.DueDate, Progress: d.Progress()}
	case *LearnDetails:
		v = learnData{CurriculumItems: nonNilItems(d.CurriculumItems), Progress: d.Progress()}
	case *SaveDetails:
		v = saveData{
			TargetAmount:     d.TargetAmount,
			CurrentAmount:    d.CurrentAmount,
			Deadline:         d.Deadline,
			SaveDates:        nonNilDays(d.SaveDates),
			SpendingTriggers: nonNilStrings(d.SpendingTriggers),
			Adjustments:      d.Adjustments,
		}
	case nil:
		return nil, fmt.Errorf("%w: missing details", ErrInvalidGoal)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCategory, d)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s data: %w", d.Category(), err)
	}
	return data, nil
}

// SameData reports whether a and b hold the same category data. Base fields
// such as timestamps and XP are ignored.
func SameData(a, b *Goal) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Category() != b.Category() {
		return false
	}
	ea, err := EncodeDetails(a.Details)
	if err != nil {
		return false
	}
	eb, err := EncodeDetails(b.Details)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// DecodeDetails parses a data column for the given category.
func DecodeDetails(category string, data []byte) (Details, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch c {
	case CategoryHabit:
		var v habitData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding habit data: %w", err)
		}
		return &HabitDetails{Frequency: v.Frequency, TargetDays: v.TargetDays, CompletedDates: normalizeDays(v.CompletedDates)}, nil
	case CategoryProject:
		var v projectData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding project data: %w", err)
		}
		return &ProjectDetails{Tasks: nonNilItems(v.Tasks), DueDate: v.DueDate}, nil
	case CategoryLearn:
		var v learnData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding learn data: %w", err)
		}
		return &LearnDetails{CurriculumItems: nonNilItems(v.CurriculumItems)}, nil
	default:
		var v saveData
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decoding save data: %w", err)
		}
		return &SaveDetails{
			TargetAmount:     v.TargetAmount,
			CurrentAmount:    v.CurrentAmount,
			Deadline:         v.Deadline,
			SaveDates:        normalizeDays(v.SaveDates),
			SpendingTriggers: nonNilStrings(v.SpendingTriggers),
			Adjustments:      v.Adjustments,
		}, nil
	}
}

// ToRow converts a goal to its storage shape.
func ToRow(g *Goal) (*Row, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil goal", ErrInvalidGoal)
	}
	data, err := EncodeDetails(g.Details)
	if err != nil {
		return nil, err
	}
	return &Row{
		ID:          g.ID,
		UserID:      g.UserID,
		Title:       g.Title,
		Description: g.Description,
		Category:    string(g.Details.Category()),
		Data:        data,
		XPEarned:    g.XPEarned,
		CreatedAt:   g.CreatedAt,
		CompletedAt: g.CompletedAt,
		UpdatedAt:   g.UpdatedAt,
	}, nil
}

// FromRow converts a stored row into a goal. Unknown categories are errors.
func FromRow(r *Row) (*Goal, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil row", ErrInvalidGoal)
	}
	d, err := DecodeDetails(r.Category, r.Data)
	if err != nil {
		return nil, fmt.Errorf("goal %s: %w", r.ID, err)
	}
	return &Goal{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
		XPEarned:    r.XPEarned,
		UpdatedAt:   r.UpdatedAt,
		Details:     d,
	}, nil
}

func nonNilDays(days []string) []string {
	return normalizeDays(days)
}

func nonNilItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	return items
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type goalJSON struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Data        json.RawMessage `json:"data"`
	XPEarned    int             `json:"xpEarned"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// MarshalJSON renders the goal in its wire shape, identical to the row with
// the data column nested under "data".
func (g *Goal) MarshalJSON() ([]byte, error) {
	r, err := ToRow(g)
	if err != nil {
		return nil, err
	}
	return json.Marshal(goalJSON(*r))
}

func (g *Goal) UnmarshalJSON(b []byte) error {
	var v goalJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r := Row(v)
	decoded, err := FromRow(&r)
	if err != nil {
		return err
	}
	*g = *decoded
	return nil
}
