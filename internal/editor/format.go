package editor

import (
	"fmt"
	"html"
	"strings"
	"time"

	"playbookd/internal/notifier"
	"playbookd/internal/playbook"
	"playbookd/internal/storage"
	"playbookd/internal/task/engine"
	"playbookd/pkg/schedcodec"
)

func esc(s string) string { return html.EscapeString(s) }

func status(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func formatList(views []playbook.View) string {
	if len(views) == 0 {
		return "no triggers yet. create one with /trigger_set"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Triggers</b> (%d)\n", len(views))
	for _, v := range views {
		fmt.Fprintf(&b, "• <code>%s</code> [%s] %s\n", esc(v.Trigger.Name), status(v.Trigger.Enabled), esc(v.Description))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatView(v playbook.View, next []time.Time) string {
	var b strings.Builder
	t := v.Trigger
	fmt.Fprintf(&b, "<b>%s</b> [%s]\n", esc(t.Name), status(t.Enabled))
	fmt.Fprintf(&b, "%s\n", esc(v.Description))
	fmt.Fprintf(&b, "cron: <code>%s</code>\n", esc(t.Cron))
	if t.Timezone != "" {
		fmt.Fprintf(&b, "timezone: %s\n", esc(t.Timezone))
	}
	fmt.Fprintf(&b, "editor: %s\n", esc(formatState(v.State)))
	if len(next) > 0 {
		b.WriteString("next:\n")
		for _, n := range next {
			fmt.Fprintf(&b, "  %s\n", n.Format("Mon 2006-01-02 15:04 MST"))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatState renders the editor fields as they would be typed back into
// /trigger_set.
func formatState(st schedcodec.ScheduleState) string {
	clock := schedcodec.FormatClock(st)
	switch st.Frequency {
	case schedcodec.Weekly:
		return fmt.Sprintf("weekly %s %s", strings.ToLower(schedcodec.WeekdayName(st.DayOfWeek)[:3]), strings.ToLower(clock))
	case schedcodec.Monthly:
		return fmt.Sprintf("monthly %d %s", st.MonthDay, strings.ToLower(clock))
	default:
		return "daily " + strings.ToLower(clock)
	}
}

func formatRuns(name string, runs []storage.RunRecord) string {
	if len(runs) == 0 {
		return "no runs recorded for <code>" + esc(name) + "</code>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> last %d runs\n", esc(name), len(runs))
	for _, r := range runs {
		res := "ok"
		if !r.OK() {
			res = "error: " + esc(r.Error)
		}
		fmt.Fprintf(&b, "• %s %s (%s, attempts %d)\n",
			r.FiredAt.UTC().Format("2006-01-02 15:04:05Z"), res, r.Duration.Round(time.Millisecond), r.Attempts)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStatus(st Status) string {
	snap := st.Scheduler
	var b strings.Builder
	state := "stopped"
	if snap.Running {
		state = "running"
	}
	fmt.Fprintf(&b, "<b>Scheduler</b> %s, tz %s\n", state, esc(snap.Timezone))
	fmt.Fprintf(&b, "workers %d, in flight %d, queue %d/%d\n", snap.Workers, snap.InFlight, snap.QueueLen, snap.QueueCap)
	fmt.Fprintf(&b, "dropped %d, skipped %d\n", snap.Dropped, snap.Skipped)

	if len(snap.Schedules) > 0 {
		fmt.Fprintf(&b, "\n<b>Schedules</b> (%d)\n", len(snap.Schedules))
		for _, it := range snap.Schedules {
			fmt.Fprintf(&b, "• <code>%s</code> next %s", esc(it.Name), stamp(it.Next))
			if !it.Prev.IsZero() {
				fmt.Fprintf(&b, ", prev %s", stamp(it.Prev))
			}
			b.WriteString("\n")
		}
	}

	if runs := tail(snap.History, statusRunsShown); len(runs) > 0 {
		b.WriteString("\n<b>Recent runs</b>\n")
		for i := len(runs) - 1; i >= 0; i-- {
			b.WriteString(formatResult(runs[i]))
		}
	}

	if notes := tail(st.Notifications, statusNotesShown); len(notes) > 0 {
		fmt.Fprintf(&b, "\n<b>Sent</b> (%d recent)\n", len(st.Notifications))
		for i := len(notes) - 1; i >= 0; i-- {
			b.WriteString(formatNote(notes[i]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatResult(r engine.Result) string {
	res := "ok"
	if r.Error != "" {
		res = "error: " + esc(r.Error)
	}
	return fmt.Sprintf("• %s <code>%s</code> %s (%s)\n", stamp(r.Started), esc(r.Name), res, r.Duration.Round(time.Millisecond))
}

func formatNote(n notifier.HistoryItem) string {
	text := strings.Join(strings.Fields(n.Text), " ")
	if r := []rune(text); len(r) > statusNoteMaxText {
		text = string(r[:statusNoteMaxText-1]) + "…"
	}
	return fmt.Sprintf("• %s %s\n", stamp(n.At), esc(text))
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("01-02 15:04Z")
}

func tail[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[len(xs)-n:]
	}
	return xs
}
