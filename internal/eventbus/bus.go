package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by playbookd components.
const (
	TriggerFired   = "playbook.fired"
	TriggerChanged = "playbook.changed"
	TriggerRemoved = "playbook.removed"
	TaskStarted    = "task.started"
	TaskFinished   = "task.finished"
	TaskSkipped    = "task.skipped"
	TaskDropped    = "task.dropped"
	NotifySent     = "notify.sent"
	NotifyFailed   = "notify.failed"
	ConfigReloaded = "config.reloaded"
)

// Event is a small in-memory signal used to decouple components.
//
// Publish never blocks; subscribers use buffered channels and a slow
// subscriber drops events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel receiving events whose Type has one of the
	// given prefixes (all events when none are given).
	Subscribe(buffer int, prefixes ...string) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fan-out bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*subscriber{}}
}

type subscriber struct {
	ch       chan Event
	prefixes []string
}

func (s *subscriber) wants(typ string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s.ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		// A concurrent unsubscribe may close ch; recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscriber{ch: make(chan Event, buffer), prefixes: append([]string(nil), prefixes...)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}
