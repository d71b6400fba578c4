package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "time/tzdata"

	"playbookd/internal/task/engine"
	logx "playbookd/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@hourly", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "Interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every hhmm", raw: "every:02:30", kind: SpecInterval, source: "hhmm", duration: 150 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:00", "-5m", "cron:", "01:75"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	h, m, err := parseHHMM("23:15", 23)
	if err != nil {
		t.Fatalf("parseHHMM error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	if _, _, err := parseHHMM("24:00", 23); err == nil {
		t.Fatal("expected error for invalid hour")
	}
}

func TestLocationSpec(t *testing.T) {
	t.Parallel()
	tests := []struct{ spec, tz, want string }{
		{"0 17 * * 5", "", "0 17 * * 5"},
		{"0 17 * * 5", "America/New_York", "CRON_TZ=America/New_York 0 17 * * 5"},
		{"0 17 * * 5", "Mars/Olympus", "CRON_TZ=UTC 0 17 * * 5"},
		{"@every 1h", "America/New_York", "@every 1h"},
	}
	for _, tt := range tests {
		if got := locationSpec(tt.spec, tt.tz); got != tt.want {
			t.Fatalf("locationSpec(%q, %q) = %q, want %q", tt.spec, tt.tz, got, tt.want)
		}
	}
}

func newRunning(t *testing.T) (*Service, *engine.Service) {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1}, logx.Nop(), nil)
	eng.Start(context.Background())
	s := New(Config{Enabled: true, Timezone: "UTC"}, eng, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
		eng.Stop(ctx)
	})
	return s, eng
}

func noop(context.Context) error { return nil }

func TestAddCronPerEntryTimezone(t *testing.T) {
	t.Parallel()
	s, _ := newRunning(t)

	if _, err := s.AddCron("digest", "0 17 * * 5", "America/Los_Angeles", Job{Run: noop}); err != nil {
		t.Fatalf("AddCron error: %v", err)
	}
	next := s.Next("digest")
	if next.IsZero() {
		t.Fatal("Next is zero")
	}
	la, _ := time.LoadLocation("America/Los_Angeles")
	local := next.In(la)
	if local.Weekday() != time.Friday || local.Hour() != 17 || local.Minute() != 0 {
		t.Fatalf("next fire %v is not Friday 17:00 in Los Angeles", local)
	}

	// Upsert by name keeps a single entry.
	if _, err := s.AddCron("digest", "30 21 15 * *", "", Job{Run: noop}); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "30 21 15 * *" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	if got := s.Next("digest").UTC(); got.Day() != 15 || got.Hour() != 21 || got.Minute() != 30 {
		t.Fatalf("next after upsert = %v", got)
	}
}

func TestLocationFollowsConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tz   string
		want string
	}{
		{tz: "Europe/Berlin", want: "Europe/Berlin"},
		{tz: "", want: time.Local.String()},
		{tz: "Mars/Olympus", want: time.Local.String()},
	}
	for _, tt := range tests {
		s := New(Config{Enabled: true, Timezone: tt.tz}, nil, logx.Nop(), nil)
		if got := s.Location().String(); got != tt.want {
			t.Fatalf("Location(%q) = %s, want %s", tt.tz, got, tt.want)
		}
	}

	s, _ := newRunning(t)
	if got := s.Location(); got.String() != "UTC" {
		t.Fatalf("running Location = %s, want UTC", got)
	}
}

func TestAddCronRejectsBadSpec(t *testing.T) {
	t.Parallel()
	s, _ := newRunning(t)
	if _, err := s.AddCron("bad", "61 * * * *", "", Job{Run: noop}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := s.AddCron("", "0 9 * * *", "", Job{Run: noop}); err == nil {
		t.Fatal("expected name error")
	}
	if _, err := s.AddCron("nojob", "0 9 * * *", "", Job{}); err == nil {
		t.Fatal("expected job error")
	}
	if s.Has("bad") {
		t.Fatal("bad entry must not be stored")
	}
}

func TestRemoveAndRunNow(t *testing.T) {
	t.Parallel()
	s, _ := newRunning(t)

	done := make(chan engine.Result, 1)
	job := Job{Run: noop, OnDone: func(r engine.Result, _ error) { done <- r }}
	if _, err := s.AddCron("restock", "0 9 1 * *", "", job); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow("restock"); err != nil {
		t.Fatalf("RunNow error: %v", err)
	}
	select {
	case r := <-done:
		if r.Name != "restock" || r.Attempts != 1 {
			t.Fatalf("result = %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}

	if !s.Remove("restock") {
		t.Fatal("Remove returned false")
	}
	if s.Remove("restock") {
		t.Fatal("second Remove returned true")
	}
	if err := s.RunNow("restock"); !errors.Is(err, ErrUnknownSchedule) {
		t.Fatalf("RunNow after Remove = %v", err)
	}
}

func TestDefinitionsSurviveRestart(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, nil, logx.Nop(), nil)
	if _, err := s.AddInterval("prune", time.Hour, Job{Run: noop}); err != nil {
		t.Fatal(err)
	}
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatal("disabled scheduler must not run")
	}

	ctx := context.Background()
	s.Apply(ctx, Config{Enabled: true, Timezone: "UTC"})
	defer s.Stop(ctx)
	snap := s.Snapshot()
	if !snap.Running || len(snap.Schedules) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	next := snap.Schedules[0].Next
	lo, hi := time.Now().Add(time.Hour-time.Second), time.Now().Add(time.Hour+maxStartupSpread+time.Second)
	if next.Before(lo) || next.After(hi) {
		t.Fatalf("interval next %v outside [%v, %v]", next, lo, hi)
	}
}
