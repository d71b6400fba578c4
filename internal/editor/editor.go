package editor

import (
	"context"
	"errors"
	"html"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"playbookd/internal/notifier"
	"playbookd/internal/playbook"
	"playbookd/internal/runtime/supervisor"
	"playbookd/internal/storage"
	"playbookd/internal/task/scheduler"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
	"playbookd/pkg/schedcodec"
)

// Triggers is the playbook service as seen by the editor.
type Triggers interface {
	SetSchedule(ctx context.Context, name string, state schedcodec.ScheduleState, tz string) (playbook.View, error)
	SetCron(ctx context.Context, name, cron, tz string) (playbook.View, error)
	Get(ctx context.Context, name string) (playbook.View, error)
	List(ctx context.Context) ([]playbook.View, error)
	Delete(ctx context.Context, name string) error
	SetEnabled(ctx context.Context, name string, enabled bool) (playbook.View, error)
	NextRuns(ctx context.Context, name string, n int) ([]time.Time, error)
	History(ctx context.Context, name string, limit int) ([]storage.RunRecord, error)
	RunNow(ctx context.Context, name string) error
}

// Status is what /trigger_status reports.
type Status struct {
	Scheduler     scheduler.Snapshot
	Notifications []notifier.HistoryItem
}

type Access int

const (
	AccessOwnerOnly Access = iota
	AccessEveryone
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger
}

type Config struct {
	Owners []int64
	// Timeout bounds one command unless the command sets its own.
	Timeout time.Duration
	Workers int
	// QueueSize is the number of commands waiting for a worker.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

// Editor routes chat commands to trigger operations.
type Editor struct {
	mu     sync.RWMutex
	owners []int64
	sender kit.Sender

	cfg      Config
	triggers Triggers
	status   func() Status
	log      logx.Logger

	cmds  []Command
	index map[string]int
}

func New(cfg Config, triggers Triggers, sender kit.Sender, log logx.Logger) *Editor {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	e := &Editor{
		owners:   append([]int64(nil), cfg.Owners...),
		sender:   sender,
		cfg:      cfg,
		triggers: triggers,
		log:      log.With(logx.String("comp", "editor")),
	}
	e.setRegistry(e.commands())
	return e
}

// SetOwners updates the allowlist for owner-only commands. Safe during reload.
func (e *Editor) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	e.mu.Lock()
	e.owners = cp
	e.mu.Unlock()
}

func (e *Editor) SetSender(s kit.Sender) {
	e.mu.Lock()
	e.sender = s
	e.mu.Unlock()
}

// SetStatus installs the source read by /trigger_status.
func (e *Editor) SetStatus(fn func() Status) {
	e.mu.Lock()
	e.status = fn
	e.mu.Unlock()
}

func (e *Editor) isOwner(id int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return id != 0 && slices.Contains(e.owners, id)
}

func (e *Editor) setRegistry(cmds []Command) {
	idx := make(map[string]int, len(cmds)*2)
	for i, c := range cmds {
		idx[c.Name] = i
		for _, a := range c.Aliases {
			if _, taken := idx[a]; !taken {
				idx[a] = i
			}
		}
	}
	e.cmds, e.index = cmds, idx
}

// MenuCommands lists the commands for the chat client's command menu.
func (e *Editor) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(e.cmds))
	for _, c := range e.cmds {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Handle processes one update synchronously. Non-command text is ignored.
func (e *Editor) Handle(ctx context.Context, up kit.Update) error {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	word, args, ok := splitCommand(msg.Text)
	if !ok {
		return nil
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	i, found := e.index[word]
	if !found {
		e.reply(ctx, chat, "unknown command. try /help")
		return nil
	}
	cmd := e.cmds[i]
	if cmd.Access == AccessOwnerOnly && !e.isOwner(msg.FromID) {
		e.log.Warn("unauthorized command", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Name))
		e.reply(ctx, chat, "unauthorized")
		return nil
	}

	rid := newReqID()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Logger: e.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	err := e.invoke(ctx, cmd, req)
	if err != nil {
		e.reply(ctx, chat, errorText(cmd, err))
	}
	return err
}

// DispatchLoop feeds updates to a bounded worker pool until ctx is done or
// updates is closed.
func (e *Editor) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(e.log),
		supervisor.WithCancelOnError(false),
	)
	jobs := make(chan kit.Update, e.cfg.QueueSize)

	for i := 0; i < e.cfg.Workers; i++ {
		idx := i
		sup.GoRestart("editor.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								e.log.Error("panic in command worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						_ = e.Handle(c, up)
					}()
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	e.log.Info("command dispatcher started", logx.Int("workers", e.cfg.Workers), logx.Int("queue_cap", cap(jobs)))

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		e.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case jobs <- up:
			default:
				if up.Message != nil {
					e.reply(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, "busy, try again")
				}
			}
		}
	}
}

func (e *Editor) reply(ctx context.Context, to kit.ChatTarget, text string) {
	e.mu.RLock()
	s := e.sender
	e.mu.RUnlock()
	if s == nil {
		return
	}
	if _, err := s.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		e.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// usageError asks for the command's usage line in the reply.
type usageError struct{ msg string }

func (u usageError) Error() string { return u.msg }

func usagef(msg string) error { return usageError{msg: msg} }

func errorText(cmd Command, err error) string {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return html.EscapeString(ue.msg) + "\nusage: <code>" + html.EscapeString(cmd.Usage) + "</code>"
	case errors.Is(err, playbook.ErrNotFound), errors.Is(err, playbook.ErrInvalidSchedule), errors.Is(err, playbook.ErrNameRequired):
		return html.EscapeString(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "failed: " + html.EscapeString(err.Error())
	}
}
