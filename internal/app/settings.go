package app

import (
	"context"
	"errors"

	"wabot/internal/config"
	"wabot/internal/storage"
	"wabot/pkg/logx"
)

// ReadSettings opens the configured store and returns the settings row.
// A missing row is reported as the zero Settings.
func ReadSettings(ctx context.Context, cfgPath string) (storage.Settings, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return storage.Settings{}, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return storage.Settings{}, err
	}
	store, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return storage.Settings{}, err
	}
	defer store.Close()

	st, err := store.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Settings{}, nil
	}
	return st, err
}
