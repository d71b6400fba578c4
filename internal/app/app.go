package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"playbookd/internal/config"
	"playbookd/internal/editor"
	"playbookd/internal/eventbus"
	"playbookd/internal/notifier"
	"playbookd/internal/playbook"
	"playbookd/internal/runtime/supervisor"
	"playbookd/internal/storage"
	"playbookd/internal/task/engine"
	"playbookd/internal/task/scheduler"
	kit "playbookd/internal/transport"
	"playbookd/internal/transport/telegram"
	logx "playbookd/pkg/logx"
)

const pruneEntry = "housekeeping.prune_runs"

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	// adapter is nil when no bot token is configured.
	adapter *telegram.Adapter

	engine    *engine.Service
	sched     *scheduler.Service
	notif     *notifier.Service
	playbooks *playbook.Service
	editor    *editor.Editor

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	var (
		ad     *telegram.Adapter
		sender kit.Sender
	)
	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		pollTimeout, err := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
		ad, err = telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, bootLog)
		if err != nil {
			return nil, err
		}
		sender = ad
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), sender)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	if ad != nil {
		ad.SetLogger(log)
	}

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(engCfg, log, bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, log, bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, sender, log, bus, store)

	pbCfg, err := mapPlaybookConfig(cfg)
	if err != nil {
		return nil, err
	}
	if ad == nil {
		pbCfg.NotifyTarget = kit.ChatTarget{}
	}
	pb := playbook.New(pbCfg, store, schedSvc, bus, notifSvc, log)

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       bus,
		store:     store,
		adapter:   ad,
		engine:    engineSvc,
		sched:     schedSvc,
		notif:     notifSvc,
		playbooks: pb,
		updates:   make(chan kit.Update, 256),
	}
	if ad != nil {
		a.editor = editor.New(mapEditorConfig(cfg), pb, ad, log)
		a.editor.SetStatus(a.status)
		if len(cfg.Telegram.OwnerUserIDs) == 0 {
			a.log.Warn("telegram.owner_user_ids is empty; trigger commands are unavailable")
		}
	}
	return a, nil
}

// Playbooks exposes the trigger service, e.g. to install a Runner.
func (a *App) Playbooks() *playbook.Service { return a.playbooks }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	cfg := a.cfgm.Get()
	runCtx := a.sup.Context()

	a.engine.Start(runCtx)
	if a.notif.Enabled() {
		a.notif.Start(runCtx)
	}

	if _, err := a.playbooks.Seed(runCtx, mapSeeds(cfg)); err != nil {
		return fmt.Errorf("seed playbooks: %w", err)
	}
	if _, err := a.playbooks.Restore(runCtx); err != nil {
		return err
	}
	if err := a.schedulePrune(pruneEvery(cfg)); err != nil {
		return err
	}
	a.sched.Start(runCtx)

	if a.adapter != nil {
		if err := a.adapter.Start(runCtx, a.updates); err != nil {
			return err
		}
		a.sup.Go("editor.dispatch", func(c context.Context) error {
			return a.editor.DispatchLoop(c, a.updates)
		})
		a.sup.Go0("telegram.menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := a.adapter.UpdateMenuCommands(mctx, a.editor.MenuCommands()); err != nil {
				a.log.Warn("menu commands not updated", logx.Err(err))
			}
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", a.cfgPath), logx.Bool("chat", a.adapter != nil))
	return nil
}

func (a *App) status() editor.Status {
	return editor.Status{Scheduler: a.sched.Snapshot(), Notifications: a.notif.History()}
}

func (a *App) schedulePrune(every string) error {
	_, err := a.sched.AddSchedule(pruneEntry, every, scheduler.Job{
		Timeout: 30 * time.Second,
		Opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning, RetryMax: -1},
		Run: func(ctx context.Context) error {
			_, err := a.playbooks.PruneHistory(ctx)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("schedule run pruning: %w", err)
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Triggers stop first so no new runs are queued while the engine drains.
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	if a.adapter != nil {
		step("adapter", 2*time.Second, a.adapter.Stop)
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
