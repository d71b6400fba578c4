package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"playbookd/internal/config"
	"playbookd/internal/editor"
	"playbookd/internal/notifier"
	"playbookd/internal/playbook"
	"playbookd/internal/storage"
	"playbookd/internal/task/engine"
	"playbookd/internal/task/scheduler"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
)

const (
	defaultPruneEvery  = "1h"
	defaultHistoryKeep = 100
)

func notifyTarget(cfg *config.Config) kit.ChatTarget {
	s := strings.TrimSpace(cfg.Telegram.NotifyChat)
	if s == "" {
		return kit.ChatTarget{}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return kit.ChatTarget{}
	}
	return kit.ChatTarget{ChatID: id, ThreadID: cfg.Telegram.NotifyThreadID}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	target := notifyTarget(cfg)
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled && !target.IsZero(),
			ChatID:     target.ChatID,
			ThreadID:   target.ThreadID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "none", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file", "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	busy, err := config.Duration("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

// mapTaskEngineConfig always enables the engine: manual runs go through it
// even when cron triggering is off.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: true}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	out.Workers = te.Workers
	out.QueueSize = te.QueueSize
	out.HistorySize = te.HistorySize
	out.RetryMax = te.RetryMax

	var err error
	if out.DefaultTimeout, err = config.Duration("task_engine.default_timeout", te.DefaultTimeout, 0); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.Duration("task_engine.max_queue_delay", te.MaxQueueDelay, 0); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true, PersistDedup: true}, nil
	}
	out := notifier.Config{
		Enabled:      n.Enabled,
		QueueSize:    n.QueueSize,
		RatePerSec:   n.RatePerSec,
		RetryMax:     n.RetryMax,
		PersistDedup: true,
	}
	var err error
	if out.RetryBase, err = config.Duration("notifier.retry_base", n.RetryBase, 0); err != nil {
		return notifier.Config{}, err
	}
	if out.RetryMaxDelay, err = config.Duration("notifier.retry_max_delay", n.RetryMaxDelay, 0); err != nil {
		return notifier.Config{}, err
	}
	if out.DedupWindow, err = config.Duration("notifier.dedup_window", n.DedupWindow, 0); err != nil {
		return notifier.Config{}, err
	}
	return out, nil
}

func mapPlaybookConfig(cfg *config.Config) (playbook.Config, error) {
	timeout, err := config.Duration("scheduler.run_timeout", cfg.Scheduler.RunTimeout, 0)
	if err != nil {
		return playbook.Config{}, err
	}
	keep := cfg.Scheduler.HistoryKeep
	if keep == 0 {
		keep = defaultHistoryKeep
	}
	return playbook.Config{
		DefaultTimezone: strings.TrimSpace(cfg.Scheduler.Timezone),
		RunTimeout:      timeout,
		HistoryKeep:     keep,
		NotifyTarget:    notifyTarget(cfg),
	}, nil
}

func mapSeeds(cfg *config.Config) []playbook.Seed {
	out := make([]playbook.Seed, 0, len(cfg.Playbooks))
	for _, p := range cfg.Playbooks {
		out = append(out, playbook.Seed{
			Name:     strings.TrimSpace(p.Name),
			Cron:     p.CronExpr(),
			Timezone: strings.TrimSpace(p.Timezone),
			Enabled:  p.IsEnabled(),
		})
	}
	return out
}

func mapEditorConfig(cfg *config.Config) editor.Config {
	return editor.Config{Owners: cfg.Telegram.OwnerUserIDs}
}

func pruneEvery(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Scheduler.PruneEvery); s != "" {
		return s
	}
	return defaultPruneEvery
}

// validate runs every mapper so a reload that cannot be applied is rejected
// before it is committed.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPlaybookConfig(cfg); err != nil {
		return err
	}
	if _, err := scheduler.ParseSchedule(pruneEvery(cfg)); err != nil {
		return fmt.Errorf("scheduler.prune_every: %w", err)
	}
	return nil
}
