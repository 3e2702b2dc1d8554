package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
http:
  addr: "127.0.0.1:4000"
session:
  settle_delay: 3s
sender:
  schedule: 5s
  default_message: "Hello from Bot!"
storage:
  driver: sqlite
  path: ./data/wabot.db
logging:
  level: debug
  console: true
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("wabot.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", cfg.HTTP.Addr)
	assert.Equal(t, "3s", cfg.Session.SettleDelay)
	assert.Equal(t, "5s", cfg.Sender.Schedule)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.True(t, cfg.Logging.Console)
	assert.Nil(t, cfg.Telegram)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Decode("wabot.json", []byte(`{"http":{"addr":":4000"},"bogus":1}`))
	require.Error(t, err)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Decode("wabot.json", []byte(`{} {}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "empty", cfg: Config{}},
		{name: "bad settle", cfg: Config{Session: SessionConfig{SettleDelay: "soon"}}, wantErr: true},
		{name: "negative settle", cfg: Config{Session: SessionConfig{SettleDelay: "-1s"}}, wantErr: true},
		{name: "bad schedule", cfg: Config{Sender: SenderConfig{Schedule: "whenever"}}, wantErr: true},
		{name: "cron schedule", cfg: Config{Sender: SenderConfig{Schedule: "*/1 * * * *"}}},
		{name: "unknown driver", cfg: Config{Storage: StorageConfig{Driver: "mongo"}}, wantErr: true},
		{name: "telegram without token", cfg: Config{Telegram: &TelegramConfig{Enabled: true}}, wantErr: true},
		{name: "telegram disabled", cfg: Config{Telegram: &TelegramConfig{}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(context.Background(), &tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDurations(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		HTTP:     HTTPConfig{ShutdownTimeout: " 750ms "},
		Telegram: &TelegramConfig{PollTimeout: "bogus"},
	}
	d, err := cfg.Durations()
	require.NoError(t, err, "poll_timeout is ignored while telegram is disabled")
	assert.Equal(t, 750*time.Millisecond, d.ShutdownTimeout)
	assert.Zero(t, d.SettleDelay)
	assert.Equal(t, 3*time.Second, Or(d.SettleDelay, 3*time.Second))
	assert.Equal(t, 750*time.Millisecond, Or(d.ShutdownTimeout, 5*time.Second))

	cfg.Telegram.Enabled = true
	cfg.Session.SettleDelay = "-1s"
	_, err = cfg.Durations()
	require.Error(t, err)
	assert.ErrorContains(t, err, "session.settle_delay")
	assert.ErrorContains(t, err, "telegram.poll_timeout")
}

func TestManagerReloadPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wabot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Unchanged content is not republished.
	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatal("unexpected publish for unchanged config")
	default:
	}

	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"  file:\n    enabled: true\n    path: ./wabot.log\n"), 0o600))
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		require.NotNil(t, cfg)
		assert.Same(t, cfg, m.Get())
	default:
		t.Fatal("expected publish after change")
	}
}

func TestManagerReloadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wabot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sender":{"schedule":"5s"}}`), 0o600))

	m := NewManager(path)
	before, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"sender":{"schedule":"nope"}}`), 0o600))
	m.reload(context.Background())
	assert.Same(t, before, m.Get())
}
