package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "playbookd/pkg/logx"
)

const (
	nextRunsShown = 3
	runsShown     = 10
	// status output keeps the tail of engine and delivery history.
	statusRunsShown   = 5
	statusNotesShown  = 3
	statusNoteMaxText = 80
)

func (e *Editor) commands() []Command {
	return []Command{
		{
			Name:        "triggers",
			Aliases:     []string{"list"},
			Description: "list trigger schedules",
			Usage:       "/triggers",
			Handle:      e.cmdList,
		},
		{
			Name:        "trigger",
			Description: "show one trigger",
			Usage:       "/trigger <name>",
			Handle:      e.cmdShow,
		},
		{
			Name:        "trigger_set",
			Description: "set a daily, weekly or monthly schedule",
			Usage:       "/trigger_set <name> daily|weekly <mon..sun>|monthly <1..28> <h:mm> <am|pm> [tz]",
			Handle:      e.cmdSet,
		},
		{
			Name:        "trigger_cron",
			Description: "set a schedule from a cron expression",
			Usage:       "/trigger_cron <name> <m> <h> <dom> <mon> <dow> [tz]",
			Handle:      e.cmdCron,
		},
		{
			Name:        "trigger_on",
			Description: "enable a trigger",
			Usage:       "/trigger_on <name>",
			Handle:      e.cmdEnable(true),
		},
		{
			Name:        "trigger_off",
			Description: "disable a trigger",
			Usage:       "/trigger_off <name>",
			Handle:      e.cmdEnable(false),
		},
		{
			Name:        "trigger_rm",
			Description: "delete a trigger",
			Usage:       "/trigger_rm <name>",
			Handle:      e.cmdDelete,
		},
		{
			Name:        "trigger_runs",
			Description: "recent runs of a trigger",
			Usage:       "/trigger_runs <name>",
			Handle:      e.cmdRuns,
		},
		{
			Name:        "trigger_run",
			Description: "fire a trigger now",
			Usage:       "/trigger_run <name>",
			Timeout:     30 * time.Second,
			Handle:      e.cmdRun,
		},
		{
			Name:        "trigger_status",
			Aliases:     []string{"status"},
			Description: "scheduler queue and delivery status",
			Usage:       "/trigger_status",
			Handle:      e.cmdStatus,
		},
		{
			Name:        "help",
			Aliases:     []string{"start", "h"},
			Description: "show help",
			Usage:       "/help",
			Access:      AccessEveryone,
			Handle:      e.cmdHelp,
		},
	}
}

func oneName(req *Request) (string, error) {
	if len(req.Args) != 1 || strings.TrimSpace(req.Args[0]) == "" {
		return "", usagef("expected one trigger name")
	}
	return req.Args[0], nil
}

func (e *Editor) cmdList(ctx context.Context, req *Request) error {
	views, err := e.triggers.List(ctx)
	if err != nil {
		return err
	}
	e.reply(ctx, req.Chat, formatList(views))
	return nil
}

func (e *Editor) cmdShow(ctx context.Context, req *Request) error {
	name, err := oneName(req)
	if err != nil {
		return err
	}
	v, err := e.triggers.Get(ctx, name)
	if err != nil {
		return err
	}
	next, err := e.triggers.NextRuns(ctx, name, nextRunsShown)
	if err != nil {
		req.Logger.Debug("next runs unavailable", logx.Err(err))
	}
	e.reply(ctx, req.Chat, formatView(v, next))
	return nil
}

func (e *Editor) cmdSet(ctx context.Context, req *Request) error {
	name, st, tz, err := parseSetArgs(req.Args)
	if err != nil {
		return err
	}
	v, err := e.triggers.SetSchedule(ctx, name, st, tz)
	if err != nil {
		return err
	}
	e.reply(ctx, req.Chat, "saved\n"+formatView(v, nil))
	return nil
}

func (e *Editor) cmdCron(ctx context.Context, req *Request) error {
	if len(req.Args) != 6 && len(req.Args) != 7 {
		return usagef("expected a name and five cron fields")
	}
	tz := ""
	if len(req.Args) == 7 {
		tz = req.Args[6]
	}
	v, err := e.triggers.SetCron(ctx, req.Args[0], strings.Join(req.Args[1:6], " "), tz)
	if err != nil {
		return err
	}
	e.reply(ctx, req.Chat, "saved\n"+formatView(v, nil))
	return nil
}

func (e *Editor) cmdEnable(on bool) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		name, err := oneName(req)
		if err != nil {
			return err
		}
		v, err := e.triggers.SetEnabled(ctx, name, on)
		if err != nil {
			return err
		}
		e.reply(ctx, req.Chat, fmt.Sprintf("<code>%s</code> is %s", esc(v.Trigger.Name), status(v.Trigger.Enabled)))
		return nil
	}
}

func (e *Editor) cmdDelete(ctx context.Context, req *Request) error {
	name, err := oneName(req)
	if err != nil {
		return err
	}
	if err := e.triggers.Delete(ctx, name); err != nil {
		return err
	}
	e.reply(ctx, req.Chat, "deleted <code>"+esc(name)+"</code>")
	return nil
}

func (e *Editor) cmdRuns(ctx context.Context, req *Request) error {
	name, err := oneName(req)
	if err != nil {
		return err
	}
	runs, err := e.triggers.History(ctx, name, runsShown)
	if err != nil {
		return err
	}
	e.reply(ctx, req.Chat, formatRuns(name, runs))
	return nil
}

func (e *Editor) cmdRun(ctx context.Context, req *Request) error {
	name, err := oneName(req)
	if err != nil {
		return err
	}
	if err := e.triggers.RunNow(ctx, name); err != nil {
		return err
	}
	e.reply(ctx, req.Chat, "queued <code>"+esc(name)+"</code>")
	return nil
}

func (e *Editor) cmdStatus(ctx context.Context, req *Request) error {
	e.mu.RLock()
	fn := e.status
	e.mu.RUnlock()
	if fn == nil {
		return errors.New("status unavailable")
	}
	e.reply(ctx, req.Chat, formatStatus(fn()))
	return nil
}

func (e *Editor) cmdHelp(ctx context.Context, req *Request) error {
	e.reply(ctx, req.Chat, e.helpText(e.isOwner(req.FromID)))
	return nil
}

func (e *Editor) helpText(owner bool) string {
	var b strings.Builder
	b.WriteString("<b>Trigger editor</b>\n")
	for _, c := range e.cmds {
		if c.Access == AccessOwnerOnly && !owner {
			continue
		}
		fmt.Fprintf(&b, "<code>%s</code>\n  %s\n", esc(c.Usage), esc(c.Description))
	}
	if !owner {
		b.WriteString("\ntrigger commands are limited to owners")
	}
	b.WriteString("\ntimes are 12-hour on the quarter hour; tz is an IANA name such as America/New_York")
	return strings.TrimRight(b.String(), "\n")
}
