package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Preferences are a user's notification settings. NotificationDays is
// indexed Monday first.
type Preferences struct {
	UserID           string    `json:"userId"`
	WindowStart      int       `json:"windowStart"`
	WindowEnd        int       `json:"windowEnd"`
	NotificationDays [7]bool   `json:"notificationDays"`
	Personality      string    `json:"personality"`
	Email            string    `json:"email,omitempty"`
	PhoneNumber      string    `json:"phoneNumber,omitempty"`
	CountryCode      string    `json:"countryCode,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ErrInvalidPreferences is returned for out-of-range windows.
var ErrInvalidPreferences = errors.New("invalid preferences")

// Validate checks the notification window.
func (p *Preferences) Validate() error {
	if p.WindowStart < 0 || p.WindowStart > 23 || p.WindowEnd < 0 || p.WindowEnd > 23 {
		return fmt.Errorf("%w: window hours must be within 0..23", ErrInvalidPreferences)
	}
	if p.WindowStart > p.WindowEnd {
		return fmt.Errorf("%w: window start after end", ErrInvalidPreferences)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q", ErrInvalidPreferences, p.Timezone)
		}
	}
	return nil
}

const preferenceColumns = `user_id, window_start, window_end, notification_days, personality, email, phone_number, country_code, timezone, updated_at`

// UpsertPreferences writes the user's preferences.
func (s *Store) UpsertPreferences(ctx context.Context, p *Preferences) error {
	days, err := json.Marshal(p.NotificationDays)
	if err != nil {
		return fmt.Errorf("encode notification days: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO preferences (`+preferenceColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  window_start = excluded.window_start,
  window_end = excluded.window_end,
  notification_days = excluded.notification_days,
  personality = excluded.personality,
  email = excluded.email,
  phone_number = excluded.phone_number,
  country_code = excluded.country_code,
  timezone = excluded.timezone,
  updated_at = excluded.updated_at;
`, p.UserID, p.WindowStart, p.WindowEnd, string(days), p.Personality,
		p.Email, p.PhoneNumber, p.CountryCode, p.Timezone, formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

// GetPreferences loads one user's preferences.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+preferenceColumns+` FROM preferences WHERE user_id = ?`, userID)
	p, err := scanPreferences(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("preferences %s: %w", userID, ErrNotFound)
	}
	return p, err
}

// ListPreferences returns every stored preference row, ordered by user.
func (s *Store) ListPreferences(ctx context.Context) ([]*Preferences, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+preferenceColumns+` FROM preferences ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	out := make([]*Preferences, 0)
	for rows.Next() {
		p, err := scanPreferences(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return out, nil
}

func scanPreferences(sc scanner) (*Preferences, error) {
	var (
		p         Preferences
		days      string
		updatedAt string
	)
	err := sc.Scan(&p.UserID, &p.WindowStart, &p.WindowEnd, &days, &p.Personality,
		&p.Email, &p.PhoneNumber, &p.CountryCode, &p.Timezone, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &p.NotificationDays); err != nil {
		return nil, fmt.Errorf("decode notification days: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
