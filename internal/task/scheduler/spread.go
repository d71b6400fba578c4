package scheduler

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// startupSpreadSchedule overrides the first run time of a base schedule.
type startupSpreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *startupSpreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

var spreadSeq uint64

// makeIntervalScheduleWithSpread delays the first tick by a random amount
// bounded by min(every, 30s) so housekeeping jobs do not all fire together.
func makeIntervalScheduleWithSpread(every time.Duration, now time.Time, tag string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := every
	if spreadMax > maxStartupSpread {
		spreadMax = maxStartupSpread
	}
	if spreadMax <= 0 {
		return base, 0
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(tag))
	seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(h.Sum64())
	jitter := time.Duration(rand.New(rand.NewSource(seed)).Int63n(int64(spreadMax)))
	return &startupSpreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}
