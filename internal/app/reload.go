package app

import (
	"context"
	"reflect"
	"strings"

	"wabot/internal/config"
	"wabot/pkg/logx"
)

// Sections that are wired once at startup.
var restartSections = map[string]bool{
	"http":     true,
	"whatsapp": true,
	"session":  true,
	"storage":  true,
	"telegram": true,
}

// changedSections lists the top-level config sections that differ.
func changedSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var out []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	add("http", prev.HTTP, next.HTTP)
	add("whatsapp", prev.WhatsApp, next.WhatsApp)
	add("session", prev.Session, next.Session)
	add("sender", prev.Sender, next.Sender)
	add("storage", prev.Storage, next.Storage)
	add("telegram", prev.Telegram, next.Telegram)
	add("logging", prev.Logging, next.Logging)
	return out
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
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
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections := changedSections(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	var pending []string
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(mapLogging(next))
		case "sender":
			sched, err := mapSchedule(next)
			if err != nil {
				a.log.Warn("invalid sender.schedule; keeping previous", logx.Err(err))
				continue
			}
			a.mgr.ApplySchedule(sched)
			if strings.TrimSpace(prev.Sender.DefaultMessage) != strings.TrimSpace(next.Sender.DefaultMessage) {
				pending = append(pending, "sender.default_message")
			}
		default:
			if restartSections[s] {
				pending = append(pending, s)
			}
		}
	}
	if len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(pending, ",")))
	}
	a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
}
