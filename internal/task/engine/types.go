package engine

import (
	"context"
	"sync"
	"time"
)

// Config controls the task execution engine.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout is used when Task.Timeout is 0.
	DefaultTimeout time.Duration

	// MaxQueueDelay drops tasks that have been queued longer than this duration.
	// 0 disables stale-queue dropping.
	MaxQueueDelay time.Duration

	HistorySize int
	RetryMax    int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	return c
}

type OverlapPolicy int

const (
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

func (p OverlapPolicy) String() string {
	if p == OverlapAllow {
		return "allow"
	}
	return "skip_if_running"
}

type TaskOptions struct {
	Overlap OverlapPolicy
	// RetryMax < 0 disables retries; 0 uses the engine default.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (o TaskOptions) withDefaults(cfg Config) TaskOptions {
	switch {
	case o.RetryMax < 0:
		o.RetryMax = 0
	case o.RetryMax == 0:
		o.RetryMax = cfg.RetryMax
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	if o.Overlap != OverlapAllow {
		o.Overlap = OverlapSkipIfRunning
	}
	return o
}

// RunState tracks whether a task is already in-flight.
// SkipIfRunning means "skip if running or already queued".
type RunState struct {
	mu       sync.Mutex
	inflight int
}

func (s *RunState) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

// Running reports whether a gated run is queued or in flight.
func (s *RunState) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Result describes a finished (or dropped) task execution.
type Result struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
}

// Task is a unit of work executed by the engine.
type Task struct {
	ID      string
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions

	// OnDone is called from the worker once the task has finished, after
	// retries. It is not called for tasks dropped before they start.
	OnDone func(Result, error)
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Dropped          uint64
	DroppedQueueFull uint64
	DroppedStale     uint64
	Skipped          uint64

	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration
	RetryMax       int

	History []Result
}
