package config

import (
	"context"
	"fmt"
	"strings"

	"wabot/internal/schedule"
)

// Validate rejects configs that would fail at wiring time. It is installed as the
// ConfigManager validator so a bad hot reload is never committed.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := cfg.Durations(); err != nil {
		return err
	}
	if s := strings.TrimSpace(cfg.Sender.Schedule); s != "" {
		if _, err := schedule.Parse(s); err != nil {
			return fmt.Errorf("sender.schedule: %w", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "file":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if tg := cfg.Telegram; tg != nil && tg.Enabled {
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("telegram.token is required when telegram.enabled is true")
		}
	}
	return nil
}
