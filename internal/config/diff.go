package config

import (
	"reflect"
	"sort"
	"strings"

	logx "playbookd/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured fields for logging. Secrets (the bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.NotifyChat) != strings.TrimSpace(nt.NotifyChat) ||
		ot.NotifyThreadID != nt.NotifyThreadID {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.notify_chat_set", strings.TrimSpace(nt.NotifyChat) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.prune_every", strings.TrimSpace(newCfg.Scheduler.PruneEvery)),
		)
	}

	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
		if te := newCfg.TaskEngine; te != nil {
			attrs = append(attrs,
				logx.Int("task_engine.workers", te.Workers),
				logx.Int("task_engine.queue_size", te.QueueSize),
				logx.Int("task_engine.retry_max", te.RetryMax),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs,
				logx.String("storage.driver", strings.TrimSpace(s.Driver)),
				logx.Bool("storage.path_set", strings.TrimSpace(s.Path) != ""),
			)
		}
	}

	if names := diffPlaybooks(oldCfg.Playbooks, newCfg.Playbooks); len(names) > 0 {
		changed = append(changed, "playbooks")
		attrs = append(attrs, logx.Strings("playbooks.changed", names))
	}

	sort.Strings(changed)
	return changed, attrs
}

// diffPlaybooks returns the sorted names of seeds that were added, removed or
// edited.
func diffPlaybooks(oldP, newP []PlaybookSeed) []string {
	index := func(ps []PlaybookSeed) map[string]PlaybookSeed {
		m := make(map[string]PlaybookSeed, len(ps))
		for _, p := range ps {
			m[strings.ToLower(strings.TrimSpace(p.Name))] = p
		}
		return m
	}
	om, nm := index(oldP), index(newP)

	var out []string
	for name, o := range om {
		n, ok := nm[name]
		if !ok || o.CronExpr() != n.CronExpr() || o.Timezone != n.Timezone || o.IsEnabled() != n.IsEnabled() {
			out = append(out, name)
		}
	}
	for name := range nm {
		if _, ok := om[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
