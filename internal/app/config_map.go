package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"wabot/internal/config"
	"wabot/internal/httpapi"
	"wabot/internal/schedule"
	"wabot/internal/session"
	"wabot/internal/storage"
	"wabot/internal/transport/telegram"
	"wabot/internal/transport/whatsapp"
	"wabot/pkg/logx"
)

const (
	defaultHTTPAddr  = "0.0.0.0:4000"
	defaultStorePath = "./data/wabot.db"
	defaultWAStore   = "./data/whatsmeow.db"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Relay: logx.RelayConfig{
			Enabled:    cfg.Logging.Relay.Enabled && telegramEnabled(cfg),
			MinLevel:   cfg.Logging.Relay.MinLevel,
			RatePerSec: cfg.Logging.Relay.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = defaultStorePath
	}
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "", "sqlite", "sqlite3":
		d, err := cfg.Durations()
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: config.Or(d.BusyTimeout, 5*time.Second)}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSchedule(cfg *config.Config) (cron.Schedule, error) {
	raw := strings.TrimSpace(cfg.Sender.Schedule)
	if raw == "" {
		return schedule.Every(session.DefaultSendEvery), nil
	}
	spec, err := schedule.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("sender.schedule: %w", err)
	}
	return spec.Schedule, nil
}

func mapSessionOptions(cfg *config.Config) (session.Options, error) {
	d, err := cfg.Durations()
	if err != nil {
		return session.Options{}, err
	}
	sched, err := mapSchedule(cfg)
	if err != nil {
		return session.Options{}, err
	}
	return session.Options{
		SessionID:      strings.TrimSpace(cfg.Session.ID),
		SettleDelay:    config.Or(d.SettleDelay, session.DefaultSettleDelay),
		SendSchedule:   sched,
		DefaultMessage: cfg.Sender.DefaultMessage,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	d, err := cfg.Durations()
	if err != nil {
		return httpapi.Config{}, err
	}
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = defaultHTTPAddr
	}
	return httpapi.Config{Addr: addr, ShutdownTimeout: config.Or(d.ShutdownTimeout, 5*time.Second)}, nil
}

func mapWhatsAppConfig(cfg *config.Config) whatsapp.Config {
	path := strings.TrimSpace(cfg.WhatsApp.StorePath)
	if path == "" {
		path = defaultWAStore
	}
	return whatsapp.Config{
		StorePath: path,
		PairPhone: strings.TrimSpace(cfg.WhatsApp.PairPhone),
		LogLevel:  cfg.WhatsApp.LogLevel,
	}
}

func telegramEnabled(cfg *config.Config) bool {
	return cfg.Telegram != nil && cfg.Telegram.Enabled
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	tg := cfg.Telegram
	d, err := cfg.Durations()
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:        tg.Token,
		OwnerUserIDs: tg.OwnerUserIDs,
		ChatID:       tg.ChatID,
		PollTimeout:  config.Or(d.PollTimeout, 10*time.Second),
	}, nil
}
