package notify

import (
	"math/rand/v2"
	"time"

	"github.com/fyrsmithlabs/goaltrack/internal/store"
)

// ScheduleAt picks a uniformly random minute inside the user's window on
// local's day. If that instant is not after local, the same offset on the
// next day is used. The end hour is inclusive, so a 9..17 window spans
// 09:00 to 17:59.
func ScheduleAt(p *store.Preferences, local time.Time, rnd *rand.Rand) time.Time {
	minutes := (p.WindowEnd - p.WindowStart + 1) * 60
	if minutes <= 0 {
		minutes = 60
	}
	offset := time.Duration(rnd.IntN(minutes)) * time.Minute

	y, m, d := local.Date()
	at := time.Date(y, m, d, p.WindowStart, 0, 0, 0, local.Location()).Add(offset)
	if !at.After(local) {
		at = time.Date(y, m, d+1, p.WindowStart, 0, 0, 0, local.Location()).Add(offset)
	}
	return at
}
