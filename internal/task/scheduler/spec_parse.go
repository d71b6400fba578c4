package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind is the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

func (k SpecKind) String() string {
	if k == SpecInterval {
		return "interval"
	}
	return "cron"
}

// ParsedSpec represents a parsed housekeeping schedule string.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// "cron:" forces cron parsing; "interval:" and "every:" force interval parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a schedule string into either a cron expression or an interval.
func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	if rest, ok := cutPrefixFold(s, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, p); ok {
			d, src, err := parseInterval(rest)
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
		}
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}

	d, src, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')", raw)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	var (
		d   time.Duration
		src string
	)
	if reHHMM.MatchString(v) {
		h, m, err := parseHHMM(v, 999)
		if err != nil {
			return 0, "", err
		}
		d, src = time.Duration(h)*time.Hour+time.Duration(m)*time.Minute, "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
		}
		src = "duration"
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, src, nil
}

// parseHHMM splits "H:MM" with hours bounded by maxHour and minutes 0..59.
func parseHHMM(s string, maxHour int) (hour, minute int, err error) {
	m := reHHMM.FindStringSubmatch(s)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > maxHour {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
