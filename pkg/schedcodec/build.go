package schedcodec

import (
	"strconv"
	"strings"
)

// BuildCron encodes state as a 5-field cron expression.
//
// Out-of-domain fields are a caller error; the result is best-effort in that
// case but always has exactly five fields.
func BuildCron(state ScheduleState) string {
	minute, err := strconv.Atoi(strings.TrimSpace(state.Minute))
	if err != nil {
		minute = 0
	}
	hour := to24Hour(state.Hour, state.AMPM)

	dom, dow := "*", "*"
	switch state.Frequency {
	case Weekly:
		dow = strconv.Itoa(ToCronWeekday(state.DayOfWeek))
	case Monthly:
		dom = strconv.Itoa(state.MonthDay)
	}

	return strconv.Itoa(minute) + " " + strconv.Itoa(hour) + " " + dom + " * " + dow
}

// to24Hour converts a 12-hour clock value. 12 AM is midnight, 12 PM is noon.
func to24Hour(hour int, ampm Meridiem) int {
	if normalizeMeridiem(ampm) == PM {
		if hour == 12 {
			return 12
		}
		return hour + 12
	}
	if hour == 12 {
		return 0
	}
	return hour
}

// from24Hour is the inverse of to24Hour. Hours outside 0..23 wrap.
func from24Hour(hour int) (int, Meridiem) {
	hour = ((hour % 24) + 24) % 24
	switch {
	case hour == 0:
		return 12, AM
	case hour < 12:
		return hour, AM
	case hour == 12:
		return 12, PM
	default:
		return hour - 12, PM
	}
}

func normalizeMeridiem(m Meridiem) Meridiem {
	if strings.EqualFold(strings.TrimSpace(string(m)), string(PM)) {
		return PM
	}
	return AM
}
