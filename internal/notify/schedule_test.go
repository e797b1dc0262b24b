package notify

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

func TestScheduleAt_StaysInsideWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	p := &store.Preferences{WindowStart: 9, WindowEnd: 11}
	local := time.Date(2026, 6, 10, 6, 0, 0, 0, loc)
	rnd := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		at := ScheduleAt(p, local, rnd)
		assert.Equal(t, loc, at.Location())
		assert.Equal(t, 10, at.Day())
		assert.GreaterOrEqual(t, at.Hour(), 9)
		assert.LessOrEqual(t, at.Hour(), 11)
		assert.Zero(t, at.Second())
	}
}

func TestScheduleAt_PastMinuteMovesToTomorrow(t *testing.T) {
	p := &store.Preferences{WindowStart: 9, WindowEnd: 9}
	local := time.Date(2026, 6, 10, 9, 59, 30, 0, time.UTC)
	at := ScheduleAt(p, local, rand.New(rand.NewPCG(3, 4)))

	assert.Equal(t, 11, at.Day())
	assert.Equal(t, 9, at.Hour())
}

func TestScheduleAt_AfterWindowIsTomorrow(t *testing.T) {
	p := &store.Preferences{WindowStart: 8, WindowEnd: 10}
	local := time.Date(2026, 6, 10, 22, 0, 0, 0, time.UTC)
	at := ScheduleAt(p, local, rand.New(rand.NewPCG(5, 6)))
	assert.Equal(t, time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC), time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC))
}
