package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"playbookd/internal/task/engine"
	logx "playbookd/pkg/logx"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

// AddSchedule parses schedule and registers either a cron or interval entry.
//
// Supported schedule formats:
//   - Cron: "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) AddSchedule(name, schedule string, job Job) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, "", job)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, job)
	default:
		return "", fmt.Errorf("unsupported schedule kind")
	}
}

// AddCron upserts a cron entry by name. tz is the IANA location the
// expression is evaluated in; empty uses the scheduler default.
func (s *Service) AddCron(name, spec, tz string, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job.Run == nil {
		return "", errors.New("job Run required")
	}
	spec = strings.TrimSpace(spec)
	if _, err := s.parser.Parse(locationSpec(spec, tz)); err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.upsert(scheduleDef{
		id:       fmt.Sprintf("cron:%d", time.Now().UnixNano()),
		name:     name,
		spec:     spec,
		timezone: strings.TrimSpace(tz),
		job:      job,
	})
}

// AddInterval upserts an interval entry by name. The first run is spread
// randomly over up to 30s past the interval.
func (s *Service) AddInterval(name string, every time.Duration, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job.Run == nil {
		return "", errors.New("job Run required")
	}
	if every <= 0 {
		return "", errors.New("interval must be > 0")
	}
	return s.upsert(scheduleDef{
		id:    fmt.Sprintf("interval:%d", time.Now().UnixNano()),
		name:  name,
		spec:  "@every " + every.String(),
		every: every,
		job:   job,
	})
}

func (s *Service) upsert(d scheduleDef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name so reloads and edits never duplicate entries.
	_ = s.removeScheduleLocked(d.name)
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Registered with cron when Start runs.
		return d.name, nil
	}
	def := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(def); err != nil {
		s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return d.name, err
	}
	args := []logx.Field{logx.String("name", d.name), logx.String("spec", d.spec), logx.Duration("timeout", d.job.Timeout)}
	if d.timezone != "" {
		args = append(args, logx.String("tz", d.timezone))
	}
	if next := s.previewNextRunsLocked(def, 3); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return d.name, nil
}

// Remove unschedules the entry with the given name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Has reports whether an entry with the given name is defined.
func (s *Service) Has(name string) bool {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return true
		}
	}
	return false
}

// RunNow enqueues the named entry's job immediately, outside its schedule.
func (s *Service) RunNow(name string) error {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	var (
		job   Job
		found bool
	)
	for _, d := range s.defs {
		if d.name == name {
			job, found = d.job, true
			break
		}
	}
	eng := s.engine
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	if eng == nil {
		return engine.ErrDisabled
	}
	return eng.Enqueue(job.task(name))
}

// removeScheduleLocked removes all defs matching name and unregisters them from cron if running.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	name, job := d.name, d.job
	fire := cron.FuncJob(func() {
		if s.engine == nil {
			return
		}
		if err := s.engine.Enqueue(job.task(name)); err != nil {
			s.reportEnqueueError(name, err)
		}
	})

	if d.every > 0 {
		loc := s.loc
		if loc == nil {
			loc = time.Local
		}
		sched, jitter := makeIntervalScheduleWithSpread(d.every, time.Now().In(loc), d.name)
		d.startupSpread = jitter
		d.entryID = s.c.Schedule(sched, fire)
		return nil
	}

	d.startupSpread = 0
	eid, err := s.c.AddJob(locationSpec(d.spec, d.timezone), fire)
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

// previewNextRunsLocked returns a short list of upcoming run times for debug logs.
func (s *Service) previewNextRunsLocked(d *scheduleDef, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || d.entryID == 0 || s.c == nil {
		return ""
	}
	sched := s.c.Entry(d.entryID).Schedule
	if sched == nil {
		return ""
	}
	t := time.Now()
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}
