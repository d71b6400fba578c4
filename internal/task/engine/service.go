package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"playbookd/internal/eventbus"
	rtsup "playbookd/internal/runtime/supervisor"
	logx "playbookd/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	q chan queuedTask

	sup      *rtsup.Supervisor
	stopCh   chan struct{}
	stopDone chan struct{}

	stateMu sync.Mutex
	states  map[string]*RunState

	hmu     sync.Mutex
	history []Result

	idSeq    uint64
	inFlight int32

	dropped          uint64
	droppedQueueFull uint64
	droppedStale     uint64
	skipped          uint64

	lastQueueFullWarnAt int64
	lastStaleWarnAt     int64
}

type queuedTask struct {
	task Task

	enqueuedAt time.Time
	timeout    time.Duration
	opt        TaskOptions

	state *RunState // non-nil when overlap gating was acquired
}

func (qt queuedTask) releaseGate() {
	if qt.state != nil {
		qt.state.release()
	}
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		log:    log.With(logx.String("comp", "taskengine")),
		bus:    bus,
		states: make(map[string]*RunState),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config; workers restart when pool shape or enablement changes.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
	case running && (prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize):
		s.Stop(ctx)
		s.Start(ctx)
	case !running && cfg.Enabled:
		s.Start(ctx)
	}
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	cfg := s.cfg
	if !cfg.Enabled {
		s.mu.Unlock()
		return
	}

	// Start is idempotent.
	if s.stopCh != nil {
		done := s.stopDone
		s.mu.Unlock()
		if done == nil {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
		if s.stopCh != nil {
			s.mu.Unlock()
			return
		}
	}

	s.q = make(chan queuedTask, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	stopCh := s.stopCh
	queue := s.q

	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// Worker failures must not take the daemon down.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c, stopCh, queue, idx)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}

	s.log.Info("task engine started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	queue := s.q
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}

	go func() {
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		// Release gates held by tasks that never ran.
		for {
			select {
			case qt := <-queue:
				qt.releaseGate()
				continue
			default:
			}
			break
		}
		s.mu.Lock()
		s.q = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
		atomic.StoreInt32(&s.inFlight, 0)
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("task engine stopped")
	case <-ctx.Done():
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue tries to enqueue a task without blocking. If the queue is full, the task is dropped.
func (s *Service) Enqueue(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("task Name is required")
	}

	now := time.Now()
	if strings.TrimSpace(t.ID) == "" {
		t.ID = s.newTaskID(now)
	}

	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	stopCh := s.stopCh
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if q == nil || stopCh == nil {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}
	opt := t.Opt.withDefaults(cfg)

	qt := queuedTask{task: t, enqueuedAt: now, timeout: timeout, opt: opt}
	if opt.Overlap == OverlapSkipIfRunning {
		st := s.StateFor(t.Name)
		if !st.tryAcquire() {
			atomic.AddUint64(&s.skipped, 1)
			s.publish(eventbus.TaskSkipped, now, Result{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"})
			s.log.Debug("task skipped due to overlap", logx.String("task", t.Name), logx.String("id", t.ID))
			return ErrOverlapSkip
		}
		qt.state = st
	}

	select {
	case q <- qt:
		return nil
	default:
		qt.releaseGate()
		s.onQueueFullDropped(now, t, q)
		return ErrQueueFull
	}
}

// StateFor returns the overlap gate shared by all tasks with this name.
func (s *Service) StateFor(name string) *RunState {
	key := strings.TrimSpace(name)
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st := s.states[key]
	if st == nil {
		st = &RunState{}
		s.states[key] = st
	}
	return st
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	s.mu.Unlock()

	ql, qc := 0, 0
	if q != nil {
		ql, qc = len(q), cap(q)
	}

	s.hmu.Lock()
	h := make([]Result, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Enabled:          cfg.Enabled,
		Workers:          cfg.Workers,
		QueueLen:         ql,
		QueueCap:         qc,
		InFlight:         int(atomic.LoadInt32(&s.inFlight)),
		Dropped:          atomic.LoadUint64(&s.dropped),
		DroppedQueueFull: atomic.LoadUint64(&s.droppedQueueFull),
		DroppedStale:     atomic.LoadUint64(&s.droppedStale),
		Skipped:          atomic.LoadUint64(&s.skipped),
		DefaultTimeout:   cfg.DefaultTimeout,
		MaxQueueDelay:    cfg.MaxQueueDelay,
		RetryMax:         cfg.RetryMax,
		History:          h,
	}
}

func (s *Service) record(r Result) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, r)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, at time.Time, r Result) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: r})
	}
}

func (s *Service) newTaskID(now time.Time) string {
	seq := atomic.AddUint64(&s.idSeq, 1)
	return fmt.Sprintf("tsk-%x-%x", now.UnixNano(), seq)
}

func (s *Service) shouldWarn(last *int64, now time.Time) bool {
	prev := atomic.LoadInt64(last)
	n := now.UnixNano()
	if prev != 0 && (n-prev) < int64(warnThrottleEvery) {
		return false
	}
	return atomic.CompareAndSwapInt64(last, prev, n)
}

func (s *Service) onQueueFullDropped(now time.Time, t Task, q chan queuedTask) {
	atomic.AddUint64(&s.dropped, 1)
	atomic.AddUint64(&s.droppedQueueFull, 1)
	s.publish(eventbus.TaskDropped, now, Result{ID: t.ID, Name: t.Name, Started: now, Error: "queue_full"})

	if s.shouldWarn(&s.lastQueueFullWarnAt, now) {
		s.log.Warn("task dropped: queue full",
			logx.String("task", t.Name),
			logx.String("id", t.ID),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)),
			logx.Uint64("dropped_queue_full", atomic.LoadUint64(&s.droppedQueueFull)),
		)
	}
}

func (s *Service) onStaleDropped(now time.Time, t Task, queueDelay time.Duration) {
	atomic.AddUint64(&s.dropped, 1)
	atomic.AddUint64(&s.droppedStale, 1)
	r := Result{ID: t.ID, Name: t.Name, Started: now, QueueDelay: queueDelay, Error: "stale_queue_delay"}
	s.publish(eventbus.TaskDropped, now, r)
	s.record(r)

	if s.shouldWarn(&s.lastStaleWarnAt, now) {
		s.log.Warn("task dropped: stale queue",
			logx.String("task", t.Name),
			logx.String("id", t.ID),
			logx.Duration("queue_delay", queueDelay),
			logx.Uint64("dropped_stale", atomic.LoadUint64(&s.droppedStale)),
		)
	}
}
