package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
)

// Profile is a user's gamification record. XP and Level are derived and
// rewritten on every resync; Medals only grow.
type Profile struct {
	UserID    string                        `json:"id"`
	XP        int                           `json:"xp"`
	Level     int                           `json:"level"`
	Medals    map[goal.Category][]goal.Tier `json:"medals"`
	UpdatedAt time.Time                     `json:"updatedAt"`
}

// HasMedal reports whether tier is earned in category.
func (p *Profile) HasMedal(category goal.Category, tier goal.Tier) bool {
	for _, t := range p.Medals[category] {
		if t == tier {
			return true
		}
	}
	return false
}

// AddMedal records tier in category, keeping tiers ordered. It reports
// whether the medal was new.
func (p *Profile) AddMedal(category goal.Category, tier goal.Tier) bool {
	if p.HasMedal(category, tier) {
		return false
	}
	if p.Medals == nil {
		p.Medals = make(map[goal.Category][]goal.Tier)
	}
	tiers := append(p.Medals[category], tier)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank() < tiers[j].Rank() })
	p.Medals[category] = tiers
	return true
}

// MedalBonusXP sums the bonus of every earned tier.
func (p *Profile) MedalBonusXP() int {
	total := 0
	for _, tiers := range p.Medals {
		for _, t := range tiers {
			total += t.BonusXP()
		}
	}
	return total
}

// GetProfile loads a profile by user id.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var (
		p         = Profile{UserID: userID}
		medals    string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT xp, level, medals, updated_at FROM profiles WHERE id = ?`, userID,
	).Scan(&p.XP, &p.Level, &medals, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal([]byte(medals), &p.Medals); err != nil {
		return nil, fmt.Errorf("decode medals: %w", err)
	}
	if p.Medals == nil {
		p.Medals = make(map[goal.Category][]goal.Tier)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile writes the whole profile.
func (s *Store) UpsertProfile(ctx context.Context, p *Profile) error {
	medals := p.Medals
	if medals == nil {
		medals = map[goal.Category][]goal.Tier{}
	}
	encoded, err := json.Marshal(medals)
	if err != nil {
		return fmt.Errorf("encode medals: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO profiles (id, xp, level, medals, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  xp = excluded.xp,
  level = excluded.level,
  medals = excluded.medals,
  updated_at = excluded.updated_at;
`, p.UserID, p.XP, p.Level, string(encoded), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
