package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"playbookd/internal/eventbus"
	"playbookd/internal/task/engine"
	logx "playbookd/pkg/logx"
	"playbookd/pkg/schedcodec"
)

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		bus:    bus,
		engine: eng,
		// Descriptor keeps "@every" usable for housekeeping entries.
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastEnqWarn: map[string]time.Time{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. A default timezone change restarts cron so that
// entries without their own location move to the new one.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	running := s.c != nil
	if running && cfg.Enabled && oldTZ != newTZ {
		s.restartLocked()
	}
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
	case !running && cfg.Enabled:
		s.Start(ctx)
	}
}

// Start starts cron triggering. Definitions added before Start are registered now.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}

	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.registerAllLocked()
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops cron triggering. Definitions are kept and resume on the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	s.registerAllLocked()
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) registerAllLocked() {
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.String("spec", s.defs[i].spec), logx.Err(err))
		}
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Location returns the zone entries without their own timezone are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil && s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

// locationSpec prefixes spec with the entry's location so robfig evaluates it there.
// Unknown ids fall back to UTC, matching schedcodec.NextRuns.
func locationSpec(spec, tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.HasPrefix(spec, "@") {
		return spec
	}
	return "CRON_TZ=" + schedcodec.LoadLocation(tz).String() + " " + spec
}
