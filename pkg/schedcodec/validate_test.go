package schedcodec

import (
	"errors"
	"testing"
	"time"

	_ "time/tzdata"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr string
		want error
	}{
		{expr: "0 9 * * *"},
		{expr: "45 23 * * 6"},
		{expr: "30 21 15 * *"},
		{expr: "0 9 *", want: ErrFieldCount},
		{expr: "@daily", want: ErrFieldCount},
		{expr: "*/5 9 * * *", want: ErrUnsupported},
		{expr: "0 9-17 * * *", want: ErrUnsupported},
		{expr: "0 9 * 2 *", want: ErrUnsupported},
		{expr: "0 9 1,15 * *", want: ErrUnsupported},
		{expr: "0 9 15 * 2", want: ErrAmbiguousDay},
	}
	for _, tt := range tests {
		err := Validate(tt.expr)
		if tt.want == nil {
			if err != nil {
				t.Fatalf("Validate(%q) error: %v", tt.expr, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Fatalf("Validate(%q) = %v, want %v", tt.expr, err, tt.want)
		}
	}

	if err := Validate("61 9 * * *"); err == nil {
		t.Fatal("expected syntax error for minute 61")
	}
}

func TestValidateAcceptsBuildOutput(t *testing.T) {
	t.Parallel()
	for _, st := range []ScheduleState{
		daily(12, "00", AM),
		{Frequency: Weekly, DayOfWeek: 7, MonthDay: 1, Hour: 11, Minute: "45", AMPM: PM},
		{Frequency: Monthly, DayOfWeek: 1, MonthDay: 28, Hour: 3, Minute: "15", AMPM: PM},
	} {
		if err := Validate(BuildCron(st)); err != nil {
			t.Fatalf("Validate(BuildCron(%+v)): %v", st, err)
		}
	}
}

func TestNextRunsAppliesTimezone(t *testing.T) {
	t.Parallel()
	after := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC) // 07:00 in New York
	runs, err := NextRuns("0 9 * * *", "America/New_York", after, 2)
	if err != nil {
		t.Fatalf("NextRuns error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	want := time.Date(2026, time.January, 5, 14, 0, 0, 0, time.UTC)
	if !runs[0].Equal(want) {
		t.Fatalf("first run = %v, want %v", runs[0].UTC(), want)
	}
	if !runs[1].Equal(want.Add(24 * time.Hour)) {
		t.Fatalf("second run = %v", runs[1].UTC())
	}
}

func TestNextRunsWeeklyUnknownTimezone(t *testing.T) {
	t.Parallel()
	after := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC) // a Sunday
	runs, err := NextRuns("0 17 * * 5", "Nowhere/Special", after, 1)
	if err != nil {
		t.Fatalf("NextRuns error: %v", err)
	}
	want := time.Date(2026, time.October, 23, 17, 0, 0, 0, time.UTC)
	if len(runs) != 1 || !runs[0].Equal(want) {
		t.Fatalf("runs = %v, want [%v]", runs, want)
	}
}

func TestNextRunsInResolvedLocation(t *testing.T) {
	t.Parallel()
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatal(err)
	}
	after := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC) // 09:00 in Tokyo
	runs, err := NextRunsIn("0 9 * * *", tokyo, after, 1)
	if err != nil {
		t.Fatalf("NextRunsIn error: %v", err)
	}
	want := time.Date(2026, time.January, 6, 0, 0, 0, 0, time.UTC)
	if len(runs) != 1 || !runs[0].Equal(want) || runs[0].Location() != tokyo {
		t.Fatalf("runs = %v, want [%v] in Asia/Tokyo", runs, want)
	}
	utc, err := NextRunsIn("0 9 * * *", nil, after, 1)
	if err != nil || len(utc) != 1 || !utc[0].Equal(after.Add(9*time.Hour)) {
		t.Fatalf("nil location runs = %v, %v", utc, err)
	}
}

func TestNextRunsInvalid(t *testing.T) {
	t.Parallel()
	if _, err := NextRuns("not cron", "", time.Now(), 1); err == nil {
		t.Fatal("expected error")
	}
	runs, err := NextRuns("0 9 * * *", "", time.Now(), 0)
	if err != nil || runs != nil {
		t.Fatalf("n=0: runs=%v err=%v", runs, err)
	}
}
