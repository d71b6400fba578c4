package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"playbookd/internal/eventbus"
	logx "playbookd/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for task")
		return Result{}
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	s, bus := startEngine(t, Config{Workers: 1, QueueSize: 4})
	events, unsub := bus.Subscribe(8, "task.")
	defer unsub()

	done := make(chan Result, 1)
	err := s.Enqueue(Task{
		Name:   "weekly-digest",
		Run:    func(context.Context) error { return nil },
		OnDone: func(r Result, err error) { done <- r },
	})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	r := waitResult(t, done)
	if r.Attempts != 1 || r.Error != "" || r.Name != "weekly-digest" || r.ID == "" {
		t.Fatalf("result = %+v", r)
	}

	var types []string
	for len(types) < 2 {
		select {
		case e := <-events:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("events = %v", types)
		}
	}
	if types[0] != eventbus.TaskStarted || types[1] != eventbus.TaskFinished {
		t.Fatalf("events = %v", types)
	}
}

func TestRetryAndNoRetry(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 2, RetryMax: 2})

	var calls int32
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name: "flaky",
		Opt:  TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond},
		Run: func(context.Context) error {
			if atomic.AddInt32(&calls, 1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
		OnDone: func(r Result, _ error) { done <- r },
	})
	if r := waitResult(t, done); r.Attempts != 3 || r.Error != "" {
		t.Fatalf("flaky result = %+v", r)
	}

	permanent := errors.New("bad playbook")
	errCh := make(chan error, 1)
	_ = s.Enqueue(Task{
		Name:   "broken",
		Run:    func(context.Context) error { return NoRetry(permanent) },
		OnDone: func(r Result, err error) { done <- r; errCh <- err },
	})
	r := waitResult(t, done)
	if r.Attempts != 1 {
		t.Fatalf("NoRetry attempts = %d", r.Attempts)
	}
	if err := <-errCh; !errors.Is(err, permanent) || IsNoRetry(err) {
		t.Fatalf("OnDone err = %v", err)
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1})
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:   "panics",
		Opt:    TaskOptions{RetryMax: -1},
		Run:    func(context.Context) error { panic("boom") },
		OnDone: func(r Result, _ error) { done <- r },
	})
	if r := waitResult(t, done); r.Error != "panic: boom" {
		t.Fatalf("result = %+v", r)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan Result, 2)
	task := Task{
		Name: "slow",
		Run: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
		OnDone: func(r Result, _ error) { done <- r },
	}
	if err := s.Enqueue(task); err != nil {
		t.Fatal(err)
	}
	<-started
	if !s.StateFor("slow").Running() {
		t.Fatal("gate should be held")
	}
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue = %v, want ErrOverlapSkip", err)
	}
	close(release)
	waitResult(t, done)
	if s.Snapshot().Skipped != 1 {
		t.Fatalf("skipped = %d", s.Snapshot().Skipped)
	}

	task.Run = func(context.Context) error { return nil }
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("Enqueue after release = %v", err)
	}
	waitResult(t, done)
}

func TestTimeout(t *testing.T) {
	t.Parallel()
	s, _ := startEngine(t, Config{Workers: 1})
	done := make(chan Result, 1)
	_ = s.Enqueue(Task{
		Name:    "hangs",
		Timeout: 20 * time.Millisecond,
		Opt:     TaskOptions{RetryMax: -1},
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		OnDone: func(r Result, _ error) { done <- r },
	})
	if r := waitResult(t, done); r.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("result = %+v", r)
	}
}

func TestDisabledAndStopped(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled Enqueue = %v", err)
	}
	s = New(Config{Enabled: true}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started Enqueue = %v", err)
	}
	if err := s.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatal("expected nil Run error")
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second, RetryJitter: 0.2}
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		retry  int
		lo, hi time.Duration
	}{
		{1, 80 * time.Millisecond, 120 * time.Millisecond},
		{2, 160 * time.Millisecond, 240 * time.Millisecond},
		{3, 320 * time.Millisecond, 480 * time.Millisecond},
		{10, 800 * time.Millisecond, time.Second},
	}
	for _, tt := range tests {
		d := backoffDelay(opt, tt.retry, rng)
		if d < tt.lo || d > tt.hi {
			t.Fatalf("backoffDelay(%d) = %v, want [%v, %v]", tt.retry, d, tt.lo, tt.hi)
		}
	}
}
