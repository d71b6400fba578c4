package scheduler

import (
	"sort"
	"time"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	tz := s.cfg.Timezone
	defs := make([]scheduleDef, len(s.defs))
	copy(defs, s.defs)
	c := s.c
	loc := s.loc
	eng := s.engine
	s.mu.Unlock()

	if tz == "" && loc != nil {
		tz = loc.String()
	}

	items := make([]ScheduleInfo, 0, len(defs))
	for _, d := range defs {
		it := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timezone: d.timezone, Timeout: d.job.Timeout}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	snap := Snapshot{
		Enabled:   enabled,
		Running:   c != nil,
		Timezone:  tz,
		Schedules: items,
	}
	if eng != nil {
		es := eng.Snapshot()
		snap.Workers = es.Workers
		snap.InFlight = es.InFlight
		snap.QueueLen = es.QueueLen
		snap.QueueCap = es.QueueCap
		snap.Dropped = es.Dropped
		snap.Skipped = es.Skipped
		snap.History = es.History
	}
	return snap
}

// Next returns the next trigger time of the named entry, or zero when the
// entry is unknown or the scheduler is not running.
func (s *Service) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	for _, d := range s.defs {
		if d.name == name && d.entryID != 0 {
			return s.c.Entry(d.entryID).Next
		}
	}
	return time.Time{}
}
