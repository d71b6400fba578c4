package eventbus

import "testing"

func TestSubscribePrefixFilter(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	tasks, unsubTasks := b.Subscribe(4, "task.")
	defer unsubTasks()

	b.Publish(Event{Type: TriggerFired, Data: "digest"})
	b.Publish(Event{Type: TaskFinished})

	if got := len(all); got != 2 {
		t.Fatalf("all subscriber got %d events, want 2", got)
	}
	if got := len(tasks); got != 1 {
		t.Fatalf("task subscriber got %d events, want 1", got)
	}
	e := <-tasks
	if e.Type != TaskFinished || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if len(ch) != 1 {
		t.Fatalf("len = %d, want 1", len(ch))
	}
	unsub()
	unsub()
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "c"})
}
