package editor

import (
	"strconv"
	"strings"

	"playbookd/pkg/schedcodec"
)

var weekdays = map[string]int{
	"mon": 1, "monday": 1,
	"tue": 2, "tues": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thur": 4, "thurs": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
	"sun": 7, "sunday": 7,
}

// parseSetArgs reads "<name> <daily|weekly|monthly> [day] <h:mm> [am|pm] [tz]".
// The meridiem may be attached to the clock ("9:30pm").
func parseSetArgs(args []string) (name string, st schedcodec.ScheduleState, tz string, err error) {
	st = schedcodec.DefaultState()
	if len(args) < 3 {
		return "", st, "", usagef("missing arguments")
	}
	name = args[0]
	rest := args[1:]

	switch freq := schedcodec.Frequency(strings.ToLower(rest[0])); freq {
	case schedcodec.Daily:
		st.Frequency = freq
		rest = rest[1:]
	case schedcodec.Weekly:
		st.Frequency = freq
		if len(rest) < 2 {
			return "", st, "", usagef("weekly needs a weekday")
		}
		if st.DayOfWeek, err = parseWeekday(rest[1]); err != nil {
			return "", st, "", err
		}
		rest = rest[2:]
	case schedcodec.Monthly:
		st.Frequency = freq
		if len(rest) < 2 {
			return "", st, "", usagef("monthly needs a day of month")
		}
		if st.MonthDay, err = parseMonthDay(rest[1]); err != nil {
			return "", st, "", err
		}
		rest = rest[2:]
	default:
		return "", st, "", usagef("frequency must be daily, weekly or monthly")
	}

	if len(rest) == 0 {
		return "", st, "", usagef("missing time")
	}
	hour, minute, mer, err := parseClock(rest[0])
	if err != nil {
		return "", st, "", err
	}
	rest = rest[1:]
	if mer == "" {
		if len(rest) == 0 {
			return "", st, "", usagef("missing am/pm")
		}
		if mer, err = parseMeridiem(rest[0]); err != nil {
			return "", st, "", err
		}
		rest = rest[1:]
	}
	st.Hour, st.Minute, st.AMPM = hour, minute, mer

	switch len(rest) {
	case 0:
	case 1:
		tz = rest[0]
	default:
		return "", st, "", usagef("unexpected " + strings.Join(rest[1:], " "))
	}
	return name, st, tz, nil
}

func parseWeekday(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdays[s]; ok {
		return d, nil
	}
	if d, err := strconv.Atoi(s); err == nil && d >= 1 && d <= 7 {
		return d, nil
	}
	return 0, usagef("weekday must be mon..sun or 1..7 (1=Monday)")
}

func parseMonthDay(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, suf := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	d, err := strconv.Atoi(s)
	if err != nil || d < 1 || d > schedcodec.MaxMonthDay {
		return 0, usagef("day of month must be 1.." + strconv.Itoa(schedcodec.MaxMonthDay))
	}
	return d, nil
}

// parseClock reads "h", "h:mm" or either with an am/pm suffix. Minutes are
// limited to the quarter hours the schedule supports.
func parseClock(s string) (hour int, minute string, mer schedcodec.Meridiem, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, m := range []schedcodec.Meridiem{schedcodec.AM, schedcodec.PM} {
		if strings.HasSuffix(s, string(m)) {
			mer = m
			s = strings.TrimSuffix(s, string(m))
			break
		}
	}
	hs, ms, hasMin := strings.Cut(s, ":")
	hour, err = strconv.Atoi(hs)
	if err != nil || hour < 1 || hour > 12 {
		return 0, "", "", usagef("hour must be 1..12")
	}
	minute = schedcodec.Minute00
	if hasMin {
		switch ms {
		case schedcodec.Minute00, schedcodec.Minute15, schedcodec.Minute30, schedcodec.Minute45:
			minute = ms
		default:
			return 0, "", "", usagef("minutes must be 00, 15, 30 or 45")
		}
	}
	return hour, minute, mer, nil
}

func parseMeridiem(s string) (schedcodec.Meridiem, error) {
	switch m := schedcodec.Meridiem(strings.ToLower(strings.TrimSpace(s))); m {
	case schedcodec.AM, schedcodec.PM:
		return m, nil
	}
	return "", usagef("expected am or pm")
}
