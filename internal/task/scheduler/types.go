package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"playbookd/internal/eventbus"
	"playbookd/internal/task/engine"
	logx "playbookd/pkg/logx"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	Enabled bool
	// Timezone is the IANA location used for entries registered without one.
	Timezone string
}

type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

// Job is what a schedule enqueues on every tick.
type Job struct {
	Timeout time.Duration
	Opt     TaskOptions
	Run     func(ctx context.Context) error
	OnDone  func(engine.Result, error)
}

func (j Job) task(name string) engine.Task {
	return engine.Task{Name: name, Timeout: j.Timeout, Run: j.Run, Opt: j.Opt, OnDone: j.OnDone}
}

type scheduleDef struct {
	id       string
	name     string
	spec     string // 5-field cron or "@every <d>"
	timezone string // empty means the scheduler default
	every    time.Duration
	job      Job

	entryID       cron.EntryID
	startupSpread time.Duration // initial random delay for interval schedules
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	ID       string
	Name     string
	Spec     string
	Timezone string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
}

type Snapshot struct {
	Enabled  bool
	Running  bool
	Timezone string

	// Executor diagnostics (task engine).
	Workers  int
	InFlight int
	QueueLen int
	QueueCap int
	Dropped  uint64
	Skipped  uint64

	Schedules []ScheduleInfo
	History   []engine.Result
}
