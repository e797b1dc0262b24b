package goalgen

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
)

type reply struct {
	Goals []draft `json:"goals"`
}

type draft struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Data        json.RawMessage `json:"data"`
}

type draftItem struct {
	Title string `json:"title"`
}

type habitDraft struct {
	Frequency  []bool `json:"frequency"`
	TargetDays *int   `json:"targetDays"`
}

type projectDraft struct {
	Tasks   []draftItem `json:"tasks"`
	DueDate string      `json:"dueDate"`
}

type learnDraft struct {
	CurriculumItems []draftItem `json:"curriculumItems"`
}

type saveDraft struct {
	TargetAmount     float64  `json:"targetAmount"`
	CurrentAmount    float64  `json:"currentAmount"`
	Deadline         string   `json:"deadline"`
	SpendingTriggers []string `json:"spendingTriggers"`
}

// stripFences removes a markdown code block around the JSON, if any.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseReply converts a model reply into new goals. Any element without a
// title or a known category, or whose data does not validate, fails the whole
// reply with ErrGeneration. Missing optional data is filled with defaults.
func parseReply(content string, now time.Time) ([]*goal.Goal, error) {
	var r reply
	if err := json.Unmarshal([]byte(stripFences(content)), &r); err != nil {
		return nil, fmt.Errorf("%w: reply is not valid JSON: %v", ErrGeneration, err)
	}
	if len(r.Goals) == 0 {
		return nil, fmt.Errorf("%w: reply contained no goals", ErrGeneration)
	}

	goals := make([]*goal.Goal, 0, len(r.Goals))
	for i, d := range r.Goals {
		g, err := d.toGoal(now)
		if err != nil {
			return nil, fmt.Errorf("%w: goal %d: %v", ErrGeneration, i, err)
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func (d draft) toGoal(now time.Time) (*goal.Goal, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", goal.ErrInvalidGoal)
	}
	c, err := goal.ParseCategory(strings.ToLower(strings.TrimSpace(d.Category)))
	if err != nil {
		return nil, err
	}
	data := d.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}

	var details goal.Details
	switch c {
	case goal.CategoryHabit:
		var v habitDraft
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		h := &goal.HabitDetails{TargetDays: v.TargetDays, CompletedDates: []string{}}
		if len(v.Frequency) == 7 {
			copy(h.Frequency[:], v.Frequency)
		} else {
			h.Frequency = [7]bool{true, true, true, true, true, true, true}
		}
		if h.TargetDays != nil && *h.TargetDays <= 0 {
			h.TargetDays = nil
		}
		details = h
	case goal.CategoryProject:
		var v projectDraft
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		p := &goal.ProjectDetails{Tasks: freshItems(v.Tasks)}
		if due, ok := parseDate(v.DueDate); ok {
			p.DueDate = &due
		}
		details = p
	case goal.CategoryLearn:
		var v learnDraft
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		details = &goal.LearnDetails{CurriculumItems: freshItems(v.CurriculumItems)}
	case goal.CategorySave:
		var v saveDraft
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		deadline, ok := parseDate(v.Deadline)
		if !ok || !deadline.After(now) {
			deadline = now.AddDate(0, 0, defaultSaveDays)
		}
		details = &goal.SaveDetails{
			TargetAmount:     v.TargetAmount,
			CurrentAmount:    v.CurrentAmount,
			Deadline:         deadline.UTC(),
			SaveDates:        []string{},
			SpendingTriggers: nonEmpty(v.SpendingTriggers),
		}
	}

	g := &goal.Goal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(d.Description),
		Details:     details,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// freshItems gives every item a new UUID and its position as order. Items
// without a title are skipped.
func freshItems(in []draftItem) []goal.Item {
	out := make([]goal.Item, 0, len(in))
	for _, it := range in {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		out = append(out, goal.Item{ID: uuid.NewString(), Title: title, Order: len(out)})
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := goal.ParseDay(s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
