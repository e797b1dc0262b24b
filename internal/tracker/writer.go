package tracker

import (
	"context"

	"github.com/fyrsmithlabs/goaltrack/internal/goal"
	"github.com/fyrsmithlabs/goaltrack/internal/progress"
)

// ServiceWriter writes through a progress service on behalf of one user.
type ServiceWriter struct {
	Service *progress.Service
	UserID  string
}

// SaveGoal implements Writer.
func (w ServiceWriter) SaveGoal(ctx context.Context, g *goal.Goal) (*goal.Goal, error) {
	res, err := w.Service.SaveGoal(ctx, w.UserID, g)
	if err != nil {
		return nil, err
	}
	return res.Goal, nil
}
