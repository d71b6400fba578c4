package playbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"playbookd/internal/eventbus"
	"playbookd/internal/storage"
	"playbookd/internal/task/scheduler"
	logx "playbookd/pkg/logx"
	"playbookd/pkg/schedcodec"
)

// entryPrefix namespaces trigger entries in the shared scheduler.
const (
	entryPrefix      = "playbook:"
	runRecordTimeout = 5 * time.Second
)

// Service owns trigger schedules: it persists them, keeps the scheduler in
// sync and turns scheduler ticks into fire events, notifications and run
// records.
type Service struct {
	// wmu serializes writes so read-modify-write of a trigger is atomic.
	wmu sync.Mutex

	mu     sync.RWMutex
	cfg    Config
	runner Runner

	store  storage.Store
	sched  *scheduler.Service
	bus    eventbus.Bus
	notify Notifier
	log    logx.Logger

	now func() time.Time
}

// New builds the service. sched, bus and notify may be nil.
func New(cfg Config, store storage.Store, sched *scheduler.Service, bus eventbus.Bus, notify Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		sched:  sched,
		bus:    bus,
		notify: notify,
		log:    log.With(logx.String("comp", "playbook")),
		now:    time.Now,
	}
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetRunner installs the work done on every firing.
func (s *Service) SetRunner(r Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

// SetSchedule stores the cron encoding of state under name. An empty tz keeps
// the trigger's current timezone, or the default for a new trigger.
func (s *Service) SetSchedule(ctx context.Context, name string, state schedcodec.ScheduleState, tz string) (View, error) {
	if !state.Valid() {
		return View{}, fmt.Errorf("%w: %+v", ErrInvalidSchedule, state)
	}
	return s.put(ctx, name, schedcodec.BuildCron(state), tz, true)
}

// SetCron imports a raw cron expression. It must stay inside the subset the
// editor can represent.
func (s *Service) SetCron(ctx context.Context, name, cron, tz string) (View, error) {
	cron, err := normalizeCron(cron)
	if err != nil {
		return View{}, err
	}
	return s.put(ctx, name, cron, tz, true)
}

func normalizeCron(cron string) (string, error) {
	cron = strings.Join(strings.Fields(cron), " ")
	if err := schedcodec.Validate(cron); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}
	return cron, nil
}

// put writes cron and tz under name. enabled only applies when the trigger is
// created; an existing trigger keeps its state.
func (s *Service) put(ctx context.Context, name, cron, tz string, enabled bool) (View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return View{}, ErrNameRequired
	}
	tz = strings.TrimSpace(tz)
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return View{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, tz)
		}
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	now := s.now().UTC()
	t, err := s.store.GetTrigger(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		t = storage.Trigger{ID: uuid.NewString(), Name: name, Enabled: enabled, CreatedAt: now}
		if tz == "" {
			tz = s.config().DefaultTimezone
		}
	case err != nil:
		return View{}, fmt.Errorf("load trigger %s: %w", name, err)
	}
	if tz != "" {
		t.Timezone = tz
	}
	t.Cron = cron
	t.UpdatedAt = now

	if err := s.store.PutTrigger(ctx, t); err != nil {
		return View{}, fmt.Errorf("save trigger %s: %w", name, err)
	}
	if err := s.sync(t); err != nil {
		return View{}, err
	}
	v := viewOf(t)
	s.publish(eventbus.TriggerChanged, v)
	s.log.Info("trigger saved", logx.String("name", t.Name), logx.String("cron", t.Cron), logx.String("tz", t.Timezone), logx.String("desc", v.Description))
	return v, nil
}

func (s *Service) Get(ctx context.Context, name string) (View, error) {
	t, err := s.load(ctx, name)
	if err != nil {
		return View{}, err
	}
	return viewOf(t), nil
}

// List returns every trigger sorted by name.
func (s *Service) List(ctx context.Context) ([]View, error) {
	ts, err := s.store.ListTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	out := make([]View, 0, len(ts))
	for _, t := range ts {
		out = append(out, viewOf(t))
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, name string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	t, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTrigger(ctx, t.Name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete trigger %s: %w", name, err)
	}
	s.unschedule(t)
	s.publish(eventbus.TriggerRemoved, viewOf(t))
	s.log.Info("trigger deleted", logx.String("name", t.Name))
	return nil
}

func (s *Service) SetEnabled(ctx context.Context, name string, enabled bool) (View, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	t, err := s.load(ctx, name)
	if err != nil {
		return View{}, err
	}
	if t.Enabled != enabled {
		t.Enabled = enabled
		t.UpdatedAt = s.now().UTC()
		if err := s.store.PutTrigger(ctx, t); err != nil {
			return View{}, fmt.Errorf("save trigger %s: %w", name, err)
		}
	}
	if err := s.sync(t); err != nil {
		return View{}, err
	}
	v := viewOf(t)
	s.publish(eventbus.TriggerChanged, v)
	return v, nil
}

// NextRuns returns the next n fire times of the trigger in the zone the
// scheduler evaluates it in.
func (s *Service) NextRuns(ctx context.Context, name string, n int) ([]time.Time, error) {
	t, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return schedcodec.NextRunsIn(t.Cron, s.location(t.Timezone), s.now(), n)
}

// location resolves tz the way the scheduler does: a trigger without its own
// zone runs in the scheduler's zone, not UTC.
func (s *Service) location(tz string) *time.Location {
	if strings.TrimSpace(tz) == "" && s.sched != nil {
		return s.sched.Location()
	}
	return schedcodec.LoadLocation(tz)
}

// History returns up to limit recent runs of the trigger, newest first.
func (s *Service) History(ctx context.Context, name string, limit int) ([]storage.RunRecord, error) {
	t, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, t.ID, limit)
}

// RunNow fires the trigger immediately through the task engine.
func (s *Service) RunNow(ctx context.Context, name string) error {
	t, err := s.load(ctx, name)
	if err != nil {
		return err
	}
	if s.sched == nil {
		return errors.New("scheduler unavailable")
	}
	if !s.sched.Has(entryName(t)) {
		if _, err := s.sched.AddCron(entryName(t), t.Cron, t.Timezone, s.job(t)); err != nil {
			return err
		}
		if !t.Enabled {
			defer s.sched.Remove(entryName(t))
		}
	}
	return s.sched.RunNow(entryName(t))
}

// Restore registers every enabled stored trigger with the scheduler.
func (s *Service) Restore(ctx context.Context) (int, error) {
	ts, err := s.store.ListTriggers(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore triggers: %w", err)
	}
	n := 0
	for _, t := range ts {
		if err := s.sync(t); err != nil {
			s.log.Warn("trigger restore failed", logx.String("name", t.Name), logx.String("cron", t.Cron), logx.Err(err))
			continue
		}
		if t.Enabled {
			n++
		}
	}
	s.log.Info("triggers restored", logx.Int("total", len(ts)), logx.Int("enabled", n))
	return n, nil
}

// Seed creates triggers declared in config that are not stored yet.
func (s *Service) Seed(ctx context.Context, seeds []Seed) (int, error) {
	created := 0
	for _, sd := range seeds {
		if _, err := s.store.GetTrigger(ctx, sd.Name); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return created, err
		}
		cron, err := normalizeCron(sd.Cron)
		if err == nil {
			_, err = s.put(ctx, sd.Name, cron, sd.Timezone, sd.Enabled)
		}
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", sd.Name, err)
		}
		created++
	}
	if created > 0 {
		s.log.Info("triggers seeded", logx.Int("count", created))
	}
	return created, nil
}

// PruneHistory trims run history to HistoryKeep runs per trigger.
func (s *Service) PruneHistory(ctx context.Context) (int, error) {
	keep := s.config().HistoryKeep
	if keep <= 0 {
		return 0, nil
	}
	n, err := s.store.PruneRuns(ctx, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	if n > 0 {
		s.log.Debug("run history pruned", logx.Int("removed", n), logx.Int("keep", keep))
	}
	return n, nil
}

func (s *Service) load(ctx context.Context, name string) (storage.Trigger, error) {
	if strings.TrimSpace(name) == "" {
		return storage.Trigger{}, ErrNameRequired
	}
	t, err := s.store.GetTrigger(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Trigger{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return storage.Trigger{}, fmt.Errorf("load trigger %s: %w", name, err)
	}
	return t, nil
}

func (s *Service) publish(typ string, v View) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.now(), Data: eventOf(v, s.now())})
}

func viewOf(t storage.Trigger) View {
	st := schedcodec.ParseCron(t.Cron)
	return View{Trigger: t, State: st, Description: schedcodec.DescribeSchedule(st, t.Timezone)}
}

func eventOf(v View, at time.Time) TriggerEvent {
	return TriggerEvent{
		ID:          v.Trigger.ID,
		Name:        v.Trigger.Name,
		Cron:        v.Trigger.Cron,
		Timezone:    v.Trigger.Timezone,
		Enabled:     v.Trigger.Enabled,
		Description: v.Description,
		At:          at,
	}
}
