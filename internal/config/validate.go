package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"playbookd/pkg/schedcodec"
)

// Duration reads a config duration field. Empty or zero yields def; negative
// values are rejected. field prefixes the error.
func Duration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration like 30s or 5m", field, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: %q must not be negative", field, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}

// Validate checks a decoded config. It is the default reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if _, err := Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0); err != nil {
		return err
	}
	if s := strings.TrimSpace(cfg.Telegram.NotifyChat); s != "" {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			return fmt.Errorf("telegram.notify_chat: invalid chat id %q", s)
		}
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if _, err := Duration("scheduler.run_timeout", cfg.Scheduler.RunTimeout, 0); err != nil {
		return err
	}
	if cfg.Scheduler.HistoryKeep < 0 {
		return fmt.Errorf("scheduler.history_keep must be >= 0")
	}

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 || te.RetryMax < 0 {
			return fmt.Errorf("task_engine: workers, queue_size, history_size and retry_max must be >= 0")
		}
		if _, err := Duration("task_engine.default_timeout", te.DefaultTimeout, 0); err != nil {
			return err
		}
		if _, err := Duration("task_engine.max_queue_delay", te.MaxQueueDelay, 0); err != nil {
			return err
		}
	}

	if n := cfg.Notifier; n != nil {
		if n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			return fmt.Errorf("notifier: queue_size, rate_per_sec and retry_max must be >= 0")
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := Duration(path, raw, 0); err != nil {
				return err
			}
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "none", "memory", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", st.Driver)
		}
		if _, err := Duration("storage.busy_timeout", st.BusyTimeout, 0); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	for i, p := range cfg.Playbooks {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("playbooks[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("playbooks[%d]: duplicate name %q", i, p.Name)
		}
		seen[name] = true
		if (p.Cron == "") == (p.Schedule == nil) {
			return fmt.Errorf("playbooks[%d]: exactly one of cron or schedule is required", i)
		}
		if p.Schedule != nil && !p.Schedule.Valid() {
			return fmt.Errorf("playbooks[%d].schedule: field out of range", i)
		}
		if err := schedcodec.Validate(p.CronExpr()); err != nil {
			return fmt.Errorf("playbooks[%d].cron: %w", i, err)
		}
	}
	return nil
}
