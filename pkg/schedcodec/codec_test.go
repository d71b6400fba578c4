package schedcodec

import "testing"

func daily(hour int, minute string, ampm Meridiem) ScheduleState {
	st := DefaultState()
	st.Hour, st.Minute, st.AMPM = hour, minute, ampm
	return st
}

func TestBuildCronHourConversion(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		state ScheduleState
		want  string
	}{
		{name: "midnight", state: daily(12, "00", AM), want: "0 0 * * *"},
		{name: "noon", state: daily(12, "00", PM), want: "0 12 * * *"},
		{name: "11pm", state: daily(11, "00", PM), want: "0 23 * * *"},
		{name: "1am", state: daily(1, "15", AM), want: "15 1 * * *"},
		{name: "9:45am", state: daily(9, "45", AM), want: "45 9 * * *"},
		{name: "1pm", state: daily(1, "30", PM), want: "30 13 * * *"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildCron(tt.state); got != tt.want {
				t.Fatalf("BuildCron() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCronFrequencies(t *testing.T) {
	t.Parallel()

	sunday := ScheduleState{Frequency: Weekly, DayOfWeek: 7, MonthDay: 1, Hour: 7, Minute: "00", AMPM: AM}
	if got := BuildCron(sunday); got != "0 7 * * 0" {
		t.Fatalf("weekly sunday = %q", got)
	}

	friday := ScheduleState{Frequency: Weekly, DayOfWeek: 5, MonthDay: 1, Hour: 5, Minute: "00", AMPM: PM}
	if got := BuildCron(friday); got != "0 17 * * 5" {
		t.Fatalf("weekly friday = %q", got)
	}

	monthly := ScheduleState{Frequency: Monthly, DayOfWeek: 3, MonthDay: 15, Hour: 9, Minute: "30", AMPM: PM}
	if got := BuildCron(monthly); got != "30 21 15 * *" {
		t.Fatalf("monthly = %q", got)
	}

	// Unused fields must not leak into the expression.
	d := monthly
	d.Frequency = Daily
	if got := BuildCron(d); got != "30 21 * * *" {
		t.Fatalf("daily with leftovers = %q", got)
	}
}

func TestParseCronScenarios(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cron string
		want ScheduleState
	}{
		{cron: "30 21 15 * *", want: ScheduleState{Frequency: Monthly, DayOfWeek: 1, MonthDay: 15, Hour: 9, Minute: "30", AMPM: PM}},
		{cron: "0 7 * * 0", want: ScheduleState{Frequency: Weekly, DayOfWeek: 7, MonthDay: 1, Hour: 7, Minute: "00", AMPM: AM}},
		{cron: "15 0 * * *", want: ScheduleState{Frequency: Daily, DayOfWeek: 1, MonthDay: 1, Hour: 12, Minute: "15", AMPM: AM}},
		{cron: "45 12 * * 3", want: ScheduleState{Frequency: Weekly, DayOfWeek: 3, MonthDay: 1, Hour: 12, Minute: "45", AMPM: PM}},
		{cron: "  0   9  *  *  *  ", want: ScheduleState{Frequency: Daily, DayOfWeek: 1, MonthDay: 1, Hour: 9, Minute: "00", AMPM: AM}},
	}
	for _, tt := range tests {
		if got := ParseCron(tt.cron); got != tt.want {
			t.Fatalf("ParseCron(%q) = %+v, want %+v", tt.cron, got, tt.want)
		}
	}
}

func TestParseCronMonthDayClamp(t *testing.T) {
	t.Parallel()
	if got := ParseCron("0 9 31 * *").MonthDay; got != 28 {
		t.Fatalf("MonthDay = %d, want 28", got)
	}
	if got := ParseCron("0 9 0 * *").MonthDay; got != 1 {
		t.Fatalf("MonthDay = %d, want 1", got)
	}
}

func TestParseCronDegradesToDefault(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "garbage", "0 9 *", "0 9 * * * *", "x 9 * * *", "0 y * * *", "@daily"} {
		if got := ParseCron(in); got != DefaultState() {
			t.Fatalf("ParseCron(%q) = %+v, want default", in, got)
		}
	}
}

func TestParseCronSnapsMinute(t *testing.T) {
	t.Parallel()
	for minute, want := range map[string]string{"17": "00", "15": "15", "59": "00", "30": "30", "45": "45"} {
		if got := ParseCron(minute + " 9 * * *").Minute; got != want {
			t.Fatalf("minute %s snapped to %q, want %q", minute, got, want)
		}
	}
}

func TestParseCronPrefersWeekday(t *testing.T) {
	t.Parallel()
	got := ParseCron("0 9 15 * 2")
	if got.Frequency != Weekly || got.DayOfWeek != 2 {
		t.Fatalf("got %+v, want weekly tuesday", got)
	}
	if BuildCron(got) == "0 9 15 * 2" {
		t.Fatal("both-restricted expression unexpectedly round-tripped")
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	var exprs []string
	for _, m := range []string{"0", "15", "30", "45"} {
		for h := 0; h < 24; h++ {
			hs := itoa(h)
			exprs = append(exprs, m+" "+hs+" * * *")
			for dow := 0; dow <= 6; dow++ {
				exprs = append(exprs, m+" "+hs+" * * "+itoa(dow))
			}
			for dom := 1; dom <= 28; dom++ {
				exprs = append(exprs, m+" "+hs+" "+itoa(dom)+" * *")
			}
		}
	}
	for _, c := range exprs {
		st := ParseCron(c)
		if !st.Valid() {
			t.Fatalf("ParseCron(%q) produced invalid state %+v", c, st)
		}
		if got := BuildCron(st); got != c {
			t.Fatalf("round trip %q -> %q", c, got)
		}
	}
}

func TestWeekdayMapping(t *testing.T) {
	t.Parallel()
	for day := 1; day <= 7; day++ {
		if got := FromCronWeekday(ToCronWeekday(day)); got != day {
			t.Fatalf("weekday %d mapped back to %d", day, got)
		}
	}
	if ToCronWeekday(7) != 0 {
		t.Fatal("Sunday must map to cron 0")
	}
	if FromCronWeekday(7) != 7 {
		t.Fatal("cron 7 must be Sunday")
	}
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
