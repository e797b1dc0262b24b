package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/goaltrack/internal/logging"
)

func TestNew_Validation(t *testing.T) {
	run := func(context.Context) error { return nil }

	_, err := New(nil, Job{Name: "plan", Interval: time.Second, Run: run})
	assert.Error(t, err)

	_, err = New(logging.NewNop(), Job{Interval: time.Second, Run: run})
	assert.Error(t, err)

	_, err = New(logging.NewNop(), Job{Name: "plan", Run: run})
	assert.Error(t, err)
}

func TestScheduler_RunsJobs(t *testing.T) {
	var plans, sends atomic.Int32
	s, err := New(logging.NewNop(),
		Job{Name: "plan", Interval: 10 * time.Millisecond, Run: func(context.Context) error { plans.Add(1); return nil }},
		Job{Name: "dispatch", Interval: 5 * time.Millisecond, Run: func(context.Context) error { sends.Add(1); return nil }},
	)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.Error(t, s.Start(context.Background()), "double start")

	assert.Eventually(t, func() bool { return plans.Load() >= 2 && sends.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	after := plans.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, plans.Load(), "no runs after Stop")
	s.Stop()
}

func TestScheduler_SurvivesErrorsAndPanics(t *testing.T) {
	tl := logging.NewTestLogger()
	var calls atomic.Int32
	s, err := New(tl.Logger, Job{Name: "flaky", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("store offline")
		}
		return nil
	}})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	tl.AssertLogged(t, zapcore.ErrorLevel, "scheduled job panicked")
	tl.AssertLogged(t, zapcore.ErrorLevel, "scheduled job failed")
}

func TestScheduler_StopCancelsRun(t *testing.T) {
	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	s, err := New(logging.NewNop(), Job{Name: "slow", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	<-started
	s.Stop()
	assert.True(t, sawCancel.Load())
}
