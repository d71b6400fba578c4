package schedcodec

import (
	"strconv"
	"strings"
)

// LocalLabel is used for timezone ids missing from the label table.
const LocalLabel = "Local"

var timezoneLabels = map[string]string{
	"America/New_York":    "Eastern",
	"America/Detroit":     "Eastern",
	"America/Chicago":     "Central",
	"America/Denver":      "Mountain",
	"America/Phoenix":     "Mountain",
	"America/Boise":       "Mountain",
	"America/Los_Angeles": "Pacific",
	"America/Anchorage":   "Alaska",
	"Pacific/Honolulu":    "Hawaii",
}

// TimezoneLabel returns the short US label for an IANA timezone id, or
// LocalLabel when the id is unknown.
func TimezoneLabel(timezoneID string) string {
	if l, ok := timezoneLabels[strings.TrimSpace(timezoneID)]; ok {
		return l
	}
	return LocalLabel
}

// DescribeSchedule renders state as an English sentence, e.g.
// "Every Friday at 5:00 PM Pacific".
//
// The clock value is printed as stored. The timezone only selects the label;
// no offset is applied.
func DescribeSchedule(state ScheduleState, timezoneID string) string {
	at := " at " + FormatClock(state) + " " + TimezoneLabel(timezoneID)
	switch state.Frequency {
	case Weekly:
		return "Every " + WeekdayName(state.DayOfWeek) + at
	case Monthly:
		return Ordinal(state.MonthDay) + " of each month" + at
	default:
		return "Every day" + at
	}
}

// FormatClock formats the time of day as "H:MM AM".
func FormatClock(state ScheduleState) string {
	minute := strings.TrimSpace(state.Minute)
	if minute == "" {
		minute = Minute00
	}
	return strconv.Itoa(state.Hour) + ":" + minute + " " + strings.ToUpper(string(normalizeMeridiem(state.AMPM)))
}

// Ordinal returns n with its English ordinal suffix: 1st, 2nd, 3rd, 4th,
// 11th, 12th, 13th, 21st, ...
func Ordinal(n int) string {
	suffix := "th"
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch abs % 100 {
	case 11, 12, 13:
	default:
		switch abs % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
