package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
)

const goalColumns = `id, user_id, title, description, category, data, xp_earned, created_at, completed_at, updated_at`

// CreateGoal inserts a new goal row.
func (s *Store) CreateGoal(ctx context.Context, g *goal.Goal) error {
	row, err := goal.ToRow(g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO goals (`+goalColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		row.ID, row.UserID, row.Title, row.Description, row.Category, string(row.Data),
		row.XPEarned, formatTime(row.CreatedAt), formatNullTime(row.CompletedAt), formatTime(row.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

// ReplaceGoal overwrites every mutable column of an existing goal. The owner
// and creation time are immutable.
func (s *Store) ReplaceGoal(ctx context.Context, g *goal.Goal) error {
	row, err := goal.ToRow(g)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE goals SET
  title = ?,
  description = ?,
  category = ?,
  data = ?,
  xp_earned = ?,
  completed_at = ?,
  updated_at = ?
WHERE id = ?;
`,
		row.Title, row.Description, row.Category, string(row.Data), row.XPEarned,
		formatNullTime(row.CompletedAt), formatTime(row.UpdatedAt), row.ID,
	)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("goal %s: %w", g.ID, ErrNotFound)
	}
	return nil
}

// GetGoal loads a goal by id.
func (s *Store) GetGoal(ctx context.Context, id string) (*goal.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return g, err
}

// DeleteGoal removes a goal. Notifications referencing it are left in place.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListGoals returns every goal of a user, oldest first.
func (s *Store) ListGoals(ctx context.Context, userID string) ([]*goal.Goal, error) {
	return s.queryGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
}

// ListActiveGoals returns the user's goals that have not completed.
func (s *Store) ListActiveGoals(ctx context.Context, userID string) ([]*goal.Goal, error) {
	return s.queryGoals(ctx, `SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND completed_at IS NULL ORDER BY created_at ASC, id ASC`, userID)
}

// CountCompletedGoals counts a user's completed goals in one category.
func (s *Store) CountCompletedGoals(ctx context.Context, userID string, category goal.Category) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM goals WHERE user_id = ? AND category = ? AND completed_at IS NOT NULL`,
		userID, string(category),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed goals: %w", err)
	}
	return n, nil
}

// SumGoalXP sums xp_earned across a user's goals.
func (s *Store) SumGoalXP(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(xp_earned), 0) FROM goals WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum goal xp: %w", err)
	}
	return n, nil
}

func (s *Store) queryGoals(ctx context.Context, query string, args ...any) ([]*goal.Goal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := make([]*goal.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(sc scanner) (*goal.Goal, error) {
	var (
		r                    goal.Row
		data                 string
		createdAt, updatedAt string
		completedAt          sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Category, &data,
		&r.XPEarned, &createdAt, &completedAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan goal: %w", err)
	}
	var err error
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if r.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	r.Data = []byte(data)
	return goal.FromRow(&r)
}
