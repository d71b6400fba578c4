package playbook

import (
	"context"
	"fmt"

	"playbookd/internal/eventbus"
	"playbookd/internal/storage"
	"playbookd/internal/task/engine"
	"playbookd/internal/task/scheduler"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
)

func entryName(t storage.Trigger) string { return entryPrefix + t.Key() }

// sync makes the scheduler entry of t match its enabled flag and cron.
func (s *Service) sync(t storage.Trigger) error {
	if s.sched == nil {
		return nil
	}
	if !t.Enabled {
		s.sched.Remove(entryName(t))
		return nil
	}
	if _, err := s.sched.AddCron(entryName(t), t.Cron, t.Timezone, s.job(t)); err != nil {
		return fmt.Errorf("schedule trigger %s: %w", t.Name, err)
	}
	return nil
}

func (s *Service) unschedule(t storage.Trigger) {
	if s.sched != nil {
		s.sched.Remove(entryName(t))
	}
}

func (s *Service) job(t storage.Trigger) scheduler.Job {
	id, name := t.ID, t.Name
	return scheduler.Job{
		Timeout: s.config().RunTimeout,
		Opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning},
		Run:     func(ctx context.Context) error { return s.fire(ctx, name) },
		OnDone: func(r engine.Result, _ error) {
			s.recordRun(storage.RunRecord{
				TriggerID:   id,
				TriggerName: name,
				FiredAt:     r.Started.UTC(),
				Duration:    r.Duration,
				Attempts:    r.Attempts,
				Error:       r.Error,
			})
		},
	}
}

// fire announces one firing and runs the configured Runner. It reloads the
// trigger so edits made since registration are reflected.
func (s *Service) fire(ctx context.Context, name string) error {
	t, err := s.load(ctx, name)
	if err != nil {
		// The trigger was deleted after the tick was queued.
		return engine.NoRetry(err)
	}
	v := viewOf(t)
	s.publish(eventbus.TriggerFired, v)
	s.log.Info("trigger fired", logx.String("name", t.Name), logx.String("desc", v.Description))

	cfg := s.config()
	if s.notify != nil && !cfg.NotifyTarget.IsZero() {
		err := s.notify.Notify(ctx, kit.Notification{
			Channel: "playbook",
			Target:  cfg.NotifyTarget,
			Text:    FireMessage(v),
		})
		if err != nil {
			s.log.Warn("fire notification not queued", logx.String("name", t.Name), logx.Err(err))
		}
	}

	s.mu.RLock()
	run := s.runner
	s.mu.RUnlock()
	if run == nil {
		return nil
	}
	return run(ctx, t)
}

// FireMessage is the chat text announcing a firing.
func FireMessage(v View) string {
	return fmt.Sprintf("▶ playbook %s fired (%s)", v.Trigger.Name, v.Description)
}

func (s *Service) recordRun(r storage.RunRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), runRecordTimeout)
	defer cancel()
	if err := s.store.AppendRun(ctx, r); err != nil {
		s.log.Warn("run record not saved", logx.String("name", r.TriggerName), logx.Err(err))
	}
}
