package notifier

import (
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoTarget  = errors.New("notifier: no target chat")
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 2000
	}
	return c
}

type HistoryItem struct {
	At   time.Time
	Text string
}

// NotificationEvent is published on the event bus for notifier lifecycle events.
type NotificationEvent struct {
	Channel  string    `json:"channel"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
}
