package app

import (
	"context"
	"slices"
	"strings"

	"playbookd/internal/config"
	"playbookd/internal/eventbus"
	kit "playbookd/internal/transport"
	logx "playbookd/pkg/logx"
)

// reloadLoop applies committed config changes to the running services.
func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if slices.Contains(sections, "storage") || prev.Telegram.Token != next.Telegram.Token {
		a.log.Warn("storage or bot token changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLoggingConfig(next))

	if a.editor != nil {
		a.editor.SetOwners(next.Telegram.OwnerUserIDs)
	}

	if engCfg, err := mapTaskEngineConfig(next); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(c, engCfg)
	}

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.notif.Stop(c)
		case !wasEnabled && ncfg.Enabled:
			a.notif.Start(c)
		}
	}

	if pbCfg, err := mapPlaybookConfig(next); err != nil {
		a.log.Warn("invalid playbook config; keeping previous", logx.Err(err))
	} else {
		if a.adapter == nil {
			pbCfg.NotifyTarget = kit.ChatTarget{}
		}
		a.playbooks.Apply(pbCfg)
	}

	if pruneEvery(prev) != pruneEvery(next) {
		if err := a.schedulePrune(pruneEvery(next)); err != nil {
			a.log.Warn("prune schedule not updated", logx.Err(err))
		}
	}
	a.sched.Apply(c, mapSchedulerConfig(next))

	if _, err := a.playbooks.Seed(c, mapSeeds(next)); err != nil {
		a.log.Warn("playbook seeds not applied", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
}
