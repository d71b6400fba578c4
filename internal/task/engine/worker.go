package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync/atomic"
	"time"

	"playbookd/internal/eventbus"
	logx "playbookd/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask, idx int) {
	// Per-worker RNG avoids global lock contention when many tasks retry.
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ (int64(idx) << 32)))

	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt, ok := <-queue:
			if !ok {
				return
			}
			atomic.AddInt32(&s.inFlight, 1)
			s.execOne(ctx, stopCh, qt, rng)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, rng *rand.Rand) {
	defer qt.releaseGate()

	start := time.Now()
	queueDelay := start.Sub(qt.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()

	if maxDelay > 0 && queueDelay > maxDelay {
		s.onStaleDropped(start, qt.task, queueDelay)
		return
	}

	log := s.log.With(logx.String("task", qt.task.Name), logx.String("id", qt.task.ID))
	log.Debug("task.started", logx.Duration("queue_delay", queueDelay))
	s.publish(eventbus.TaskStarted, start, Result{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay})

	var err error
	attempts := 0
	maxAttempts := 1 + qt.opt.RetryMax
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		err = s.runAttempt(ctx, qt, log)
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(qt.opt, attempt, rng)
		log.Debug("task retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", delay), logx.Err(err))
		if delay <= 0 {
			continue
		}
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			tmr.Stop()
			err = ErrStopping
			break attemptLoop
		case <-tmr.C:
		}
	}

	finish := time.Now()
	res := Result{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: finish.Sub(start), Attempts: attempts}
	if err != nil {
		res.Error = err.Error()
		log.Warn("task.failed", logx.Err(err), logx.Duration("dur", res.Duration), logx.Int("attempts", attempts))
	} else if res.Duration >= 750*time.Millisecond {
		log.Info("task.completed", logx.Duration("dur", res.Duration), logx.Int("attempts", attempts))
	} else {
		log.Debug("task.completed", logx.Duration("dur", res.Duration), logx.Int("attempts", attempts))
	}
	s.publish(eventbus.TaskFinished, finish, res)
	s.record(res)

	if qt.task.OnDone != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("task.on_done panic", logx.Any("panic", r))
				}
			}()
			qt.task.OnDone(res, err)
		}()
	}
}

// runAttempt converts task panics to errors so one bad playbook cannot kill a worker.
func (s *Service) runAttempt(ctx context.Context, qt queuedTask, log logx.Logger) (err error) {
	runCtx := ctx
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task.panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return qt.task.Run(runCtx)
}

func backoffDelay(opt TaskOptions, retry int, rng *rand.Rand) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	return jitter(d, opt, rng)
}

func jitter(d time.Duration, opt TaskOptions, rng *rand.Rand) time.Duration {
	if opt.RetryJitter > 0 && d > 0 && rng != nil {
		r := (rng.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
	}
	if d < 0 {
		d = 0
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}
