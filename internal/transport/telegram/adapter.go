// Package telegram is the telebot.v4 long-polling implementation of the
// transport port used by the trigger editor and the notifier.
package telegram

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "playbookd/internal/runtime/supervisor"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower than the poll loop.
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
}

var _ kit.Adapter = (*Adapter)(nil)
var _ kit.CommandMenuUpdater = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)

	// Handlers forward to the current output channel; Start may swap it.
	b.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
			},
		})
		return nil
	})
	return a, nil
}

// SetLogger replaces the boot logger once the logging service is up. Call
// it before Start.
func (a *Adapter) SetLogger(log logx.Logger) {
	if !log.IsZero() {
		a.log = log.With(logx.String("comp", "telegram"))
	}
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	reportDrops := func() {
		if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				reportDrops()
				return
			case <-ticker.C:
				reportDrops()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// telebot's Start can return on transport failures; restart it until cancelled.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

// Stop never blocks shutdown for longer than a short grace window, since a
// getUpdates long-poll may still be in flight.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	sup.Cancel()
	go a.bot.Stop()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitText(text, textLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// UpdateMenuCommands publishes the command menu (setMyCommands). It only
// calls Telegram when the list changed since the last successful call.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list := menuCommands(cmds)

	h := fnv.New64a()
	for _, c := range list {
		h.Write([]byte(c.Text))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()

	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}

// menuCommands applies Telegram's limits: at most 100 commands, descriptions
// up to 256 bytes, and no empty descriptions.
func menuCommands(cmds []kit.BotCommand) []tele.Command {
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
		if name == "" {
			continue
		}
		d := strings.TrimSpace(c.Description)
		if d == "" {
			d = name
		}
		if len(d) > 256 {
			d = d[:256]
		}
		out = append(out, tele.Command{Text: name, Description: d})
		if len(out) >= 100 {
			break
		}
	}
	return out
}
