package schedcodec

// The editor numbers weekdays ISO-style (1=Monday .. 7=Sunday) while cron
// uses 0=Sunday .. 6=Saturday. Monday..Saturday share the same numbers, so
// only Sunday needs translating. Keep every conversion in this file.

// ToCronWeekday maps an editor weekday (1..7) to a cron day-of-week (0..6).
func ToCronWeekday(day int) int {
	return ((day % 7) + 7) % 7
}

// FromCronWeekday maps a cron day-of-week to an editor weekday (1..7).
// Cron's alternate Sunday spelling 7 is accepted. Values outside 0..7 map to
// Monday.
func FromCronWeekday(dow int) int {
	switch {
	case dow == 0 || dow == 7:
		return 7
	case dow >= 1 && dow <= 6:
		return dow
	default:
		return 1
	}
}

var weekdayNames = [...]string{
	1: "Monday",
	2: "Tuesday",
	3: "Wednesday",
	4: "Thursday",
	5: "Friday",
	6: "Saturday",
	7: "Sunday",
}

// WeekdayName returns the English name of an editor weekday (1..7).
func WeekdayName(day int) string {
	if day < 1 || day > 7 {
		day = FromCronWeekday(ToCronWeekday(day))
	}
	return weekdayNames[day]
}
