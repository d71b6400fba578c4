package playbook

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	_ "time/tzdata"

	"playbookd/internal/eventbus"
	"playbookd/internal/storage"
	"playbookd/internal/task/engine"
	"playbookd/internal/task/scheduler"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
	"playbookd/pkg/schedcodec"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n kit.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Text)
	}
	return out
}

type fixture struct {
	svc   *Service
	store storage.Store
	sched *scheduler.Service
	bus   eventbus.Bus
	note  *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return newFixtureWithStore(t, store)
}

func newFixtureWithStore(t *testing.T, store storage.Store) fixture {
	t.Helper()
	return newFixtureZones(t, store, "UTC", "America/New_York")
}

// newFixtureZones builds a fixture whose scheduler runs in schedTZ and whose
// new triggers default to defaultTZ.
func newFixtureZones(t *testing.T, store storage.Store, schedTZ, defaultTZ string) fixture {
	t.Helper()
	bus := eventbus.New()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), bus)
	eng.Start(context.Background())
	sched := scheduler.New(scheduler.Config{Enabled: true, Timezone: schedTZ}, eng, logx.Nop(), bus)
	sched.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Stop(ctx)
		eng.Stop(ctx)
	})

	note := &recordingNotifier{}
	cfg := Config{
		DefaultTimezone: defaultTZ,
		RunTimeout:      time.Second,
		HistoryKeep:     2,
		NotifyTarget:    kit.ChatTarget{ChatID: 42},
	}
	return fixture{
		svc:   New(cfg, store, sched, bus, note, logx.Nop()),
		store: store,
		sched: sched,
		bus:   bus,
		note:  note,
	}
}

func weeklyFriday5pm() schedcodec.ScheduleState {
	st := schedcodec.DefaultState()
	st.Frequency = schedcodec.Weekly
	st.DayOfWeek = 5
	st.Hour = 5
	st.AMPM = schedcodec.PM
	return st
}

func TestSetScheduleCreatesAndRegisters(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.SetSchedule(ctx, "Weekly Digest", weeklyFriday5pm(), "America/Los_Angeles")
	if err != nil {
		t.Fatalf("SetSchedule error: %v", err)
	}
	if v.Trigger.Cron != "0 17 * * 5" {
		t.Fatalf("cron = %q", v.Trigger.Cron)
	}
	if v.Description != "Every Friday at 5:00 PM Pacific" {
		t.Fatalf("description = %q", v.Description)
	}
	if v.Trigger.ID == "" || !v.Trigger.Enabled {
		t.Fatalf("trigger = %+v", v.Trigger)
	}
	if v.State != weeklyFriday5pm() {
		t.Fatalf("state = %+v", v.State)
	}
	if !f.sched.Has(entryName(v.Trigger)) {
		t.Fatal("trigger not registered with scheduler")
	}

	la, _ := time.LoadLocation("America/Los_Angeles")
	next := f.sched.Next(entryName(v.Trigger)).In(la)
	if next.Weekday() != time.Friday || next.Hour() != 17 {
		t.Fatalf("next fire %v", next)
	}

	// Updating without a timezone keeps the stored one and the ID.
	st := schedcodec.DefaultState()
	st.Frequency = schedcodec.Monthly
	st.MonthDay = 15
	st.Hour = 9
	st.Minute = schedcodec.Minute30
	v2, err := f.svc.SetSchedule(ctx, "weekly digest", st, "")
	if err != nil {
		t.Fatal(err)
	}
	if v2.Trigger.ID != v.Trigger.ID || v2.Trigger.Timezone != "America/Los_Angeles" {
		t.Fatalf("updated trigger = %+v", v2.Trigger)
	}
	if v2.Trigger.Cron != "30 9 15 * *" || v2.Description != "15th of each month at 9:30 AM Pacific" {
		t.Fatalf("updated view = %+v", v2)
	}
}

func TestSetScheduleDefaultTimezone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	v, err := f.svc.SetSchedule(context.Background(), "restock", schedcodec.DefaultState(), "")
	if err != nil {
		t.Fatal(err)
	}
	if v.Trigger.Timezone != "America/New_York" || v.Description != "Every day at 7:00 AM Eastern" {
		t.Fatalf("view = %+v", v)
	}
}

func TestSetScheduleRejectsBadInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetSchedule(ctx, "  ", schedcodec.DefaultState(), ""); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("empty name err = %v", err)
	}
	bad := schedcodec.DefaultState()
	bad.Hour = 13
	if _, err := f.svc.SetSchedule(ctx, "x", bad, ""); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("bad state err = %v", err)
	}
	if _, err := f.svc.SetSchedule(ctx, "x", schedcodec.DefaultState(), "Mars/Olympus"); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("bad tz err = %v", err)
	}
	if _, err := f.svc.Get(ctx, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected writes must not persist, Get err = %v", err)
	}
}

func TestSetCron(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		cron    string
		wantErr error
	}{
		{cron: "0 9 1 * 1", wantErr: schedcodec.ErrAmbiguousDay},
		{cron: "*/5 * * * *", wantErr: schedcodec.ErrUnsupported},
		{cron: "0 9 * *", wantErr: schedcodec.ErrFieldCount},
	}
	for _, tt := range tests {
		_, err := f.svc.SetCron(ctx, "promo", tt.cron, "")
		if !errors.Is(err, ErrInvalidSchedule) || !errors.Is(err, tt.wantErr) {
			t.Fatalf("SetCron(%q) err = %v, want %v", tt.cron, err, tt.wantErr)
		}
	}

	v, err := f.svc.SetCron(ctx, "promo", "  45   23 *  * 0 ", "America/Chicago")
	if err != nil {
		t.Fatal(err)
	}
	if v.Trigger.Cron != "45 23 * * 0" || v.Description != "Every Sunday at 11:45 PM Central" {
		t.Fatalf("view = %+v", v)
	}
}

func TestEnableDisableDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.svc.SetSchedule(ctx, "winback", schedcodec.DefaultState(), "")
	if err != nil {
		t.Fatal(err)
	}
	entry := entryName(v.Trigger)

	if v, err = f.svc.SetEnabled(ctx, "winback", false); err != nil || v.Trigger.Enabled {
		t.Fatalf("disable: %+v %v", v, err)
	}
	if f.sched.Has(entry) {
		t.Fatal("disabled trigger still scheduled")
	}
	// Editing a disabled trigger keeps it unscheduled.
	if _, err := f.svc.SetCron(ctx, "winback", "0 8 * * *", ""); err != nil {
		t.Fatal(err)
	}
	if f.sched.Has(entry) {
		t.Fatal("edit re-registered a disabled trigger")
	}
	if _, err := f.svc.SetEnabled(ctx, "WINBACK", true); err != nil {
		t.Fatal(err)
	}
	if !f.sched.Has(entry) {
		t.Fatal("enabled trigger not scheduled")
	}

	if err := f.svc.Delete(ctx, "winback"); err != nil {
		t.Fatal(err)
	}
	if f.sched.Has(entry) {
		t.Fatal("deleted trigger still scheduled")
	}
	if err := f.svc.Delete(ctx, "winback"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete err = %v", err)
	}
	if _, err := f.svc.SetEnabled(ctx, "winback", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetEnabled missing err = %v", err)
	}
}

func TestListSortedByName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"zeta", "Alpha", "mid"} {
		if _, err := f.svc.SetSchedule(ctx, name, schedcodec.DefaultState(), ""); err != nil {
			t.Fatal(err)
		}
	}
	views, err := f.svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, v := range views {
		names = append(names, v.Trigger.Name)
	}
	if len(names) != 3 || names[0] != "Alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Fatalf("names = %v", names)
	}
}

func TestNextRunsUsesTriggerTimezone(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.SetCron(ctx, "launch", "0 17 * * 5", "America/Los_Angeles"); err != nil {
		t.Fatal(err)
	}
	f.svc.now = func() time.Time { return time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC) }
	runs, err := f.svc.NextRuns(ctx, "launch", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %v", runs)
	}
	// 2024-03-08 is a Friday in PST (UTC-8).
	if want := time.Date(2024, 3, 9, 1, 0, 0, 0, time.UTC); !runs[0].Equal(want) {
		t.Fatalf("first run = %v, want %v", runs[0].UTC(), want)
	}
}

// Not parallel: swaps time.Local.
func TestNextRunsFollowsSchedulerZoneWithoutTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	prev := time.Local
	time.Local = tokyo
	t.Cleanup(func() { time.Local = prev })

	store, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	f := newFixtureZones(t, store, "", "")
	ctx := context.Background()
	v, err := f.svc.SetCron(ctx, "p", "0 9 * * *", "")
	if err != nil {
		t.Fatal(err)
	}
	if v.Trigger.Timezone != "" {
		t.Fatalf("timezone = %q, want empty", v.Trigger.Timezone)
	}
	if got := f.sched.Location(); got != tokyo {
		t.Fatalf("scheduler location = %v, want Asia/Tokyo", got)
	}

	runs, err := f.svc.NextRuns(ctx, "p", 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("NextRuns = %v, %v", runs, err)
	}
	next := f.sched.Next("playbook:p")
	if next.IsZero() {
		t.Fatal("scheduler has no next run for playbook:p")
	}
	if !runs[0].Equal(next) {
		t.Fatalf("NextRuns = %v, scheduler fires at %v", runs[0], next)
	}
	if h := runs[0].In(tokyo).Hour(); h != 9 {
		t.Fatalf("hour in Tokyo = %d, want 9", h)
	}
}

func waitRuns(t *testing.T, f fixture, name string, n int) []storage.RunRecord {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		runs, err := f.svc.History(context.Background(), name, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) >= n {
			return runs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d runs, want %d", len(runs), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunNowFiresAndRecords(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	events, unsub := f.bus.Subscribe(8, eventbus.TriggerFired)
	defer unsub()

	ran := make(chan string, 1)
	f.svc.SetRunner(func(_ context.Context, tr storage.Trigger) error {
		ran <- tr.Name
		return nil
	})

	if _, err := f.svc.SetSchedule(ctx, "digest", weeklyFriday5pm(), "America/Los_Angeles"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RunNow(ctx, "digest"); err != nil {
		t.Fatalf("RunNow error: %v", err)
	}

	select {
	case name := <-ran:
		if name != "digest" {
			t.Fatalf("runner got %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runner not called")
	}
	select {
	case e := <-events:
		ev, ok := e.Data.(TriggerEvent)
		if !ok || ev.Name != "digest" || ev.Cron != "0 17 * * 5" {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no fired event")
	}

	runs := waitRuns(t, f, "digest", 1)
	if !runs[0].OK() || runs[0].Attempts != 1 || runs[0].TriggerName != "digest" {
		t.Fatalf("run = %+v", runs[0])
	}
	texts := f.note.texts()
	if len(texts) != 1 || texts[0] != "▶ playbook digest fired (Every Friday at 5:00 PM Pacific)" {
		t.Fatalf("notifications = %q", texts)
	}
}

func TestRunNowRecordsRunnerError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	f.svc.SetRunner(func(context.Context, storage.Trigger) error {
		return engine.NoRetry(errors.New("crm offline"))
	})
	if _, err := f.svc.SetSchedule(ctx, "broken", schedcodec.DefaultState(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SetEnabled(ctx, "broken", false); err != nil {
		t.Fatal(err)
	}
	// Disabled triggers can still be fired by hand.
	if err := f.svc.RunNow(ctx, "broken"); err != nil {
		t.Fatal(err)
	}
	runs := waitRuns(t, f, "broken", 1)
	if runs[0].OK() {
		t.Fatalf("run = %+v, want error", runs[0])
	}
	if err := f.svc.RunNow(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RunNow missing err = %v", err)
	}
}

func TestSeedAndRestore(t *testing.T) {
	t.Parallel()
	store, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	f := newFixtureWithStore(t, store)
	if _, err := f.svc.SetCron(ctx, "existing", "15 6 * * *", "UTC"); err != nil {
		t.Fatal(err)
	}
	seeds := []Seed{
		{Name: "existing", Cron: "0 9 * * *", Enabled: true},
		{Name: "fresh", Cron: "0 10 * * 1", Timezone: "America/Denver", Enabled: true},
		{Name: "paused", Cron: "0 11 2 * *", Enabled: false},
	}
	n, err := f.svc.Seed(ctx, seeds)
	if err != nil || n != 2 {
		t.Fatalf("Seed = %d, %v", n, err)
	}
	v, _ := f.svc.Get(ctx, "existing")
	if v.Trigger.Cron != "15 6 * * *" {
		t.Fatalf("seed overwrote stored trigger: %+v", v.Trigger)
	}
	v, _ = f.svc.Get(ctx, "paused")
	if v.Trigger.Enabled {
		t.Fatal("paused seed must be disabled")
	}
	if _, err := f.svc.Seed(ctx, []Seed{{Name: "bad", Cron: "0 9 1 * 1", Enabled: true}}); !errors.Is(err, schedcodec.ErrAmbiguousDay) {
		t.Fatalf("bad seed err = %v", err)
	}

	// A second service over the same store restores enabled triggers.
	g := newFixtureWithStore(t, store)
	restored, err := g.svc.Restore(ctx)
	if err != nil || restored != 2 {
		t.Fatalf("Restore = %d, %v", restored, err)
	}
	views, _ := g.svc.List(ctx)
	for _, v := range views {
		if got := g.sched.Has(entryName(v.Trigger)); got != v.Trigger.Enabled {
			t.Fatalf("%s scheduled=%v enabled=%v", v.Trigger.Name, got, v.Trigger.Enabled)
		}
	}
}

func TestSeedDisabledNeverSchedules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	events, unsub := f.bus.Subscribe(16, eventbus.TriggerChanged)
	defer unsub()

	n, err := f.svc.Seed(ctx, []Seed{{Name: "paused", Cron: "30 7 * * 1", Enabled: false}})
	if err != nil || n != 1 {
		t.Fatalf("Seed = %d, %v", n, err)
	}
	v, err := f.svc.Get(ctx, "paused")
	if err != nil {
		t.Fatal(err)
	}
	if v.Trigger.Enabled || f.sched.Has(entryName(v.Trigger)) {
		t.Fatalf("paused seed scheduled: %+v", v.Trigger)
	}
	seen := 0
	for {
		select {
		case e := <-events:
			ev := e.Data.(TriggerEvent)
			if ev.Enabled {
				t.Fatalf("paused seed was stored enabled: %+v", ev)
			}
			seen++
			continue
		default:
		}
		break
	}
	if seen != 1 {
		t.Fatalf("TriggerChanged events = %d, want 1", seen)
	}
}

func TestPruneHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.svc.SetSchedule(ctx, "noisy", schedcodec.DefaultState(), "")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := storage.RunRecord{TriggerID: v.Trigger.ID, TriggerName: "noisy", FiredAt: base.Add(time.Duration(i) * time.Hour), Attempts: 1}
		if err := f.store.AppendRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := f.svc.PruneHistory(ctx)
	if err != nil || removed != 3 {
		t.Fatalf("PruneHistory = %d, %v", removed, err)
	}
	runs, _ := f.svc.History(ctx, "noisy", 10)
	if len(runs) != 2 || !runs[0].FiredAt.Equal(base.Add(4*time.Hour)) {
		t.Fatalf("runs = %+v", runs)
	}
}
