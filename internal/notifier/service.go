package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"playbookd/internal/eventbus"
	rtsup "playbookd/internal/runtime/supervisor"
	"playbookd/internal/storage"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
)

const (
	sendTimeout = 10 * time.Second
	historySize = 300
)

type job struct {
	n        kit.Notification
	dedupKey string
}

// Service implements an async notification pipeline:
// queue + worker pool + rate limit + retry + dedup.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus
	store  storage.Store

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue     chan job
	persistCh chan dedupWrite
	sup       *rtsup.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

// New builds a notifier. store may be nil; it is only used when PersistDedup is set.
func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		store:  store,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetSender swaps the delivery transport, e.g. once the chat adapter is up.
func (s *Service) SetSender(sender kit.Sender) {
	s.mu.Lock()
	s.sender = sender
	s.mu.Unlock()
}

// Apply updates limits in place. Worker count and queue size take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes do not block.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	sup, q, pch, workers := s.sup, s.queue, s.persistCh, s.cfg.Workers
	s.mu.Unlock()

	exitErr := func(c context.Context, what string) error {
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return fmt.Errorf("notifier %s exited unexpectedly", what)
	}

	if pch != nil {
		sup.GoRestart("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch)
			return exitErr(c, "persist loop")
		}, rtsup.WithPublishFirstError(true))
	}
	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return exitErr(c, "worker")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Debug("notifier started", logx.Int("workers", workers), logx.Int("queue", cap(q)))
}

// Stop stops intake and drains the queue best-effort until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	if q == nil {
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
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// In-flight Notify calls finish before the queue closes.
		s.sendWG.Wait()
		if pch != nil {
			close(pch)
		}
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue = nil
		s.persistCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Notify enqueues n for delivery. A message suppressed by dedup returns nil.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Target.IsZero() {
		return ErrNoTarget
	}
	if strings.TrimSpace(n.Text) == "" {
		return errors.New("notifier: empty text")
	}

	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q, cfg, pch := s.queue, s.cfg, s.persistCh
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(n)
	if cfg.DedupWindow > 0 && key != "" && !s.dedupAllow(ctx, key, cfg, pch) {
		s.publish("notify.deduped", n, key, 0, "")
		return nil
	}

	select {
	case q <- job{n: n, dedupKey: key}:
		return nil
	default:
		s.publish("notify.dropped", n, key, 0, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// History returns recently delivered messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n kit.Notification, key string, attempts int, errText string) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: NotificationEvent{
		Channel: n.Channel, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID,
		Key: key, At: now, Attempts: attempts, Error: errText,
	}})
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := s.store.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim, sender := s.cfg, s.limiter, s.sender
	s.mu.Unlock()

	if sender == nil {
		s.publish(eventbus.NotifyFailed, j.n, j.dedupKey, 0, "no sender")
		return
	}
	text := prefixForPriority(j.n.Priority) + j.n.Text

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		_, err := sender.SendText(callCtx, j.n.Target, text, j.n.Options)
		cancel()
		if err == nil {
			s.appendHistory(text)
			s.publish(eventbus.NotifySent, j.n, j.dedupKey, attempt, "")
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.log.Warn("notify failed", logx.Err(lastErr), logx.String("channel", j.n.Channel), logx.Int64("chat_id", j.n.Target.ChatID))
	s.publish(eventbus.NotifyFailed, j.n, j.dedupKey, maxAttempts, lastErr.Error())
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	default:
		return ""
	}
}

// retryDelay is the delay before attempt+1: base * 2^(attempt-1) with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
