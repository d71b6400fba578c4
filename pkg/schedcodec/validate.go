package schedcodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrFieldCount is returned for expressions that are not exactly five fields.
	ErrFieldCount = errors.New("cron expression must have exactly 5 fields")
	// ErrUnsupported is returned for valid cron syntax outside the subset the
	// editor can represent (lists, ranges, steps, a restricted month).
	ErrUnsupported = errors.New("cron expression outside supported subset")
	// ErrAmbiguousDay is returned when both day-of-month and day-of-week are
	// restricted. Cron treats that as "either day"; ScheduleState cannot.
	ErrAmbiguousDay = errors.New("cron expression restricts both day-of-month and day-of-week")
)

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Validate checks that expr is standard cron syntax and stays inside the
// subset produced by BuildCron.
func Validate(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return ErrFieldCount
	}
	if _, err := standardParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	if _, err := singleValue(fields[0], 0, 59); err != nil {
		return fmt.Errorf("minute: %w", err)
	}
	if _, err := singleValue(fields[1], 0, 23); err != nil {
		return fmt.Errorf("hour: %w", err)
	}
	if fields[3] != "*" {
		return fmt.Errorf("month must be '*': %w", ErrUnsupported)
	}
	if fields[2] != "*" {
		if _, err := singleValue(fields[2], 1, 31); err != nil {
			return fmt.Errorf("day-of-month: %w", err)
		}
	}
	if fields[4] != "*" {
		if _, err := singleValue(fields[4], 0, 6); err != nil {
			return fmt.Errorf("day-of-week: %w", err)
		}
	}
	if fields[2] != "*" && fields[4] != "*" {
		return ErrAmbiguousDay
	}
	return nil
}

func singleValue(field string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("%q is not a single value: %w", field, ErrUnsupported)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%d out of range [%d,%d]: %w", v, lo, hi, ErrUnsupported)
	}
	return v, nil
}

// NextRuns returns the next n fire times of expr after the given instant,
// evaluating the expression in timezoneID. Unknown or empty timezone ids
// fall back to UTC. Unlike DescribeSchedule this applies real offsets,
// including DST transitions.
func NextRuns(expr, timezoneID string, after time.Time, n int) ([]time.Time, error) {
	return NextRunsIn(expr, LoadLocation(timezoneID), after, n)
}

// NextRunsIn is NextRuns with an already resolved location. A nil loc means UTC.
func NextRunsIn(expr string, loc *time.Location, after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	sched, err := standardParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	t := after.In(loc)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadLocation resolves an IANA timezone id, falling back to UTC.
func LoadLocation(timezoneID string) *time.Location {
	tz := strings.TrimSpace(timezoneID)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
