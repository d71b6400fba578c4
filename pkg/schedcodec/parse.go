package schedcodec

import (
	"strconv"
	"strings"
)

// ParseCron decodes a cron expression into a ScheduleState. It never fails:
// input without exactly five fields, or whose minute or hour is not an
// integer, yields DefaultState.
//
// A restricted day-of-week wins over a restricted day-of-month. The encoder
// never restricts both, so such expressions do not round-trip.
func ParseCron(cron string) ScheduleState {
	fields := strings.Fields(cron)
	if len(fields) != 5 {
		return DefaultState()
	}
	minute, err := strconv.Atoi(fields[0])
	if err != nil {
		return DefaultState()
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil {
		return DefaultState()
	}

	st := DefaultState()
	switch {
	case fields[4] != "*":
		st.Frequency = Weekly
		if dow, err := strconv.Atoi(fields[4]); err == nil {
			st.DayOfWeek = FromCronWeekday(dow)
		}
	case fields[2] != "*":
		st.Frequency = Monthly
		if dom, err := strconv.Atoi(fields[2]); err == nil {
			st.MonthDay = ClampMonthDay(dom)
		}
	default:
		st.Frequency = Daily
	}

	st.Hour, st.AMPM = from24Hour(hour)
	st.Minute = SnapMinute(minute)
	return st
}

// SnapMinute maps a cron minute onto the editor's quarter-hour choices.
// Exact quarters are kept; every other value becomes "00". This is lossy on
// purpose: the editor cannot represent other minutes.
func SnapMinute(minute int) string {
	switch minute {
	case 15:
		return Minute15
	case 30:
		return Minute30
	case 45:
		return Minute45
	default:
		return Minute00
	}
}

// ClampMonthDay clamps a day-of-month into [1, MaxMonthDay].
func ClampMonthDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > MaxMonthDay {
		return MaxMonthDay
	}
	return day
}
