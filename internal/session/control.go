package session

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"

	"wabot/internal/storage"
	"wabot/pkg/logx"
)

func (m *Manager) defaults() storage.Settings {
	return storage.Settings{Message: m.opts.DefaultMessage}
}

// GetCurrentSettings returns the persisted settings, or the defaults when no
// row exists yet.
func (m *Manager) GetCurrentSettings(ctx context.Context) (storage.Settings, error) {
	st, err := m.store.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return m.defaults(), nil
	}
	return st, err
}

// UpdateSettings persists the message and enable flag, then applies the flag
// to the scheduler. The flag is not applied when persisting fails. The message
// is stored as given; a blank one falls back to the default at send time.
func (m *Manager) UpdateSettings(ctx context.Context, message string, isActive bool) (storage.Settings, error) {
	patch := storage.SettingsPatch{Message: &message, IsActive: &isActive}
	err := m.store.UpdateSettings(ctx, patch)
	if errors.Is(err, storage.ErrNotFound) {
		if _, err = m.store.EnsureSettings(ctx, m.defaults()); err == nil {
			err = m.store.UpdateSettings(ctx, patch)
		}
	}
	if err != nil {
		return storage.Settings{}, err
	}

	m.sched.SetEnabled(isActive)
	m.log.Info("settings updated", logx.Bool("active", isActive))
	m.audit(ctx, "settings", "", nil)
	return m.GetCurrentSettings(ctx)
}

// Toggle is the real-time switch. It affects only the running scheduler and
// is deliberately not persisted.
func (m *Manager) Toggle(on bool) {
	m.sched.SetEnabled(on)
	m.log.Info("auto-send toggled", logx.Bool("active", on))
}

// Logout revokes the current session, purges credentials and re-pairs after
// the settle delay. It returns once the teardown is done.
func (m *Manager) Logout(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case m.cmds <- cmdLogout{reply: reply}:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplySchedule swaps the auto-send period.
func (m *Manager) ApplySchedule(sched cron.Schedule) {
	m.sched.SetSchedule(sched)
}

// Status snapshots the session.
func (m *Manager) Status() Status {
	m.mu.RLock()
	st := Status{
		State:       m.state,
		Phone:       m.phone,
		PairingCode: m.pairingCode,
	}
	m.mu.RUnlock()
	st.Sending = m.sched.Enabled()
	st.SchedulerRunning = m.sched.Running()
	return st
}

// PairingCode returns the outstanding pairing code, if any.
func (m *Manager) PairingCode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pairingCode
}
