package config

import "playbookd/pkg/schedcodec"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Scheduler controls trigger behavior (cron evaluation, housekeeping).
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of fired playbook runs.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`

	// Playbooks seeds triggers on startup. Stored triggers win over seeds,
	// so edits made through the editor survive restarts.
	Playbooks []PlaybookSeed `json:"playbooks,omitempty"`
}

// TelegramConfig configures the chat transport used by the trigger editor
// and by fire notifications. An empty token disables the transport.
type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// NotifyChat is the chat id receiving fire notifications and chat logs.
	NotifyChat     string `json:"notify_chat,omitempty"`
	NotifyThreadID int    `json:"notify_thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulerConfig controls trigger evaluation.
//
// Timezone is the IANA zone used for triggers that do not carry their own.
// PruneEvery accepts cron, Go duration or HH:MM interval syntax.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// RunTimeout bounds a single playbook run (Go duration string).
	RunTimeout string `json:"run_timeout,omitempty"`
	PruneEvery string `json:"prune_every,omitempty"`
	// HistoryKeep is the number of run records kept per trigger.
	HistoryKeep int `json:"history_keep,omitempty"`
}

// TaskEngineConfig controls the run executor.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 3
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// NotifierConfig controls the async notification pipeline. If the section is
// omitted the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	DedupWindow   string `json:"dedup_window"`
}

// StorageConfig controls trigger persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/playbookd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PlaybookSeed declares a trigger in config. Exactly one of Cron or Schedule
// must be set.
type PlaybookSeed struct {
	Name     string                    `json:"name"`
	Cron     string                    `json:"cron,omitempty"`
	Schedule *schedcodec.ScheduleState `json:"schedule,omitempty"`
	Timezone string                    `json:"timezone,omitempty"`
	Enabled  *bool                     `json:"enabled,omitempty"`
}

// CronExpr returns the seed's cron expression, encoding Schedule if needed.
func (p PlaybookSeed) CronExpr() string {
	if p.Schedule != nil {
		return schedcodec.BuildCron(*p.Schedule)
	}
	return p.Cron
}

// IsEnabled defaults to true when omitted.
func (p PlaybookSeed) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}
