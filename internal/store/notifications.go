package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NotificationStatus is the lifecycle state of a scheduled notification.
type NotificationStatus string

const (
	StatusPending NotificationStatus = "pending"
	StatusSending NotificationStatus = "sending"
	StatusSent    NotificationStatus = "sent"
	StatusFailed  NotificationStatus = "failed"
)

// ScheduledNotification is a queued reminder for one goal.
type ScheduledNotification struct {
	ID          string             `json:"id"`
	UserID      string             `json:"userId"`
	GoalID      string             `json:"goalId"`
	Message     string             `json:"message"`
	ScheduledAt time.Time          `json:"scheduledAt"`
	Status      NotificationStatus `json:"status"`
	Channel     string             `json:"channel,omitempty"`
	Error       string             `json:"error,omitempty"`
	SentAt      *time.Time         `json:"sentAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NotificationLog marks that a goal was scheduled for a reminder on a
// calendar day in the user's timezone.
type NotificationLog struct {
	UserID    string
	GoalID    string
	LogDate   string
	CreatedAt time.Time
}

const notificationColumns = `id, user_id, goal_id, message, scheduled_at, status, channel, error, sent_at, created_at`

// ClaimNotificationLog inserts the (goal, day) log row. It reports false when
// the row already exists, meaning another pass owns this goal today.
func (s *Store) ClaimNotificationLog(ctx context.Context, l NotificationLog) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO notification_logs (user_id, goal_id, log_date, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(goal_id, log_date) DO NOTHING;
`, l.UserID, l.GoalID, l.LogDate, formatTime(l.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("claim notification log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim notification log: %w", err)
	}
	return n == 1, nil
}

// ReleaseNotificationLog removes a claim whose enqueue failed.
func (s *Store) ReleaseNotificationLog(ctx context.Context, goalID, logDate string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_logs WHERE goal_id = ? AND log_date = ?`, goalID, logDate); err != nil {
		return fmt.Errorf("release notification log: %w", err)
	}
	return nil
}

// LastNotificationDate returns the most recent log date for a goal.
func (s *Store) LastNotificationDate(ctx context.Context, goalID string) (string, bool, error) {
	var day sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(log_date) FROM notification_logs WHERE goal_id = ?`, goalID).Scan(&day)
	if err != nil {
		return "", false, fmt.Errorf("last notification date: %w", err)
	}
	if !day.Valid {
		return "", false, nil
	}
	return day.String, true, nil
}

// EnqueueNotification inserts a scheduled notification.
func (s *Store) EnqueueNotification(ctx context.Context, n *ScheduledNotification) error {
	if n.Status == "" {
		n.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO scheduled_notifications (`+notificationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, n.ID, n.UserID, n.GoalID, n.Message, formatTime(n.ScheduledAt), string(n.Status),
		n.Channel, n.Error, formatNullTime(n.SentAt), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// GetNotification loads one scheduled notification.
func (s *Store) GetNotification(ctx context.Context, id string) (*ScheduledNotification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM scheduled_notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return n, err
}

// DueNotifications returns pending rows scheduled at or before the cutoff,
// oldest first.
func (s *Store) DueNotifications(ctx context.Context, cutoff time.Time, limit int) ([]*ScheduledNotification, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+notificationColumns+`
FROM scheduled_notifications
WHERE status = ? AND scheduled_at <= ?
ORDER BY scheduled_at ASC, id ASC
LIMIT ?;
`, string(StatusPending), formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("due notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*ScheduledNotification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// ClaimNotification moves a pending row to sending. It reports false when
// another dispatch pass already claimed the row.
func (s *Store) ClaimNotification(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE scheduled_notifications SET status = ? WHERE id = ? AND status = ?;
`, string(StatusSending), id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	return n == 1, nil
}

// MarkNotificationSent records a successful delivery of a claimed row.
func (s *Store) MarkNotificationSent(ctx context.Context, id, channel string, sentAt time.Time) error {
	return s.finishNotification(ctx, id, StatusSent, channel, "", &sentAt)
}

// MarkNotificationFailed records a failed delivery of a claimed row. Failed
// rows are not retried.
func (s *Store) MarkNotificationFailed(ctx context.Context, id, channel, reason string) error {
	return s.finishNotification(ctx, id, StatusFailed, channel, reason, nil)
}

func (s *Store) finishNotification(ctx context.Context, id string, status NotificationStatus, channel, reason string, sentAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE scheduled_notifications
SET status = ?, channel = ?, error = ?, sent_at = ?
WHERE id = ? AND status = ?;
`, string(status), channel, reason, formatNullTime(sentAt), id, string(StatusSending))
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("claimed notification %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanNotification(sc scanner) (*ScheduledNotification, error) {
	var (
		n                      ScheduledNotification
		status                 string
		scheduledAt, createdAt string
		sentAt                 sql.NullString
	)
	err := sc.Scan(&n.ID, &n.UserID, &n.GoalID, &n.Message, &scheduledAt, &status,
		&n.Channel, &n.Error, &sentAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.Status = NotificationStatus(status)
	if n.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return nil, err
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if n.SentAt, err = parseNullTime(sentAt); err != nil {
		return nil, err
	}
	return &n, nil
}

// AddDeviceToken registers a push token for a user. Re-registering is a no-op.
func (s *Store) AddDeviceToken(ctx context.Context, userID, token string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO device_tokens (user_id, token, created_at)
VALUES (?, ?, ?)
ON CONFLICT(user_id, token) DO NOTHING;
`, userID, token, formatTime(at))
	if err != nil {
		return fmt.Errorf("add device token: %w", err)
	}
	return nil
}

// DeviceTokens lists a user's push tokens.
func (s *Store) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token FROM device_tokens WHERE user_id = ? ORDER BY created_at, token`, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device tokens: %w", err)
	}
	return out, nil
}
