package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/internal/config"
	"wabot/internal/session"
)

type stubClient struct {
	mu     sync.Mutex
	closed bool
}

func (c *stubClient) Send(context.Context, string, string) error { return nil }
func (c *stubClient) Logout(context.Context) error               { return nil }
func (c *stubClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *stubClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stubConnector hands out clients that immediately ask to be paired.
type stubConnector struct {
	mu      sync.Mutex
	clients []*stubClient
}

func (s *stubConnector) Initialize(_ context.Context, _ session.AuthState, sink session.EventSink) (session.Client, error) {
	c := &stubClient{}
	s.mu.Lock()
	s.clients = append(s.clients, c)
	s.mu.Unlock()
	go sink(session.Event{Kind: session.EventPairingCode, Code: "2@stub-qr-payload-for-tests"})
	return c, nil
}

func (s *stubConnector) last() *stubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return nil
	}
	return s.clients[len(s.clients)-1]
}

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	dir := t.TempDir()
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "wabot.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func baseConfig(t *testing.T) map[string]any {
	dir := t.TempDir()
	return map[string]any{
		"http":    map[string]any{"addr": "127.0.0.1:0", "shutdown_timeout": "1s"},
		"session": map[string]any{"settle_delay": "3s"},
		"sender":  map[string]any{"schedule": "5s"},
		"storage": map[string]any{"driver": "file", "path": filepath.Join(dir, "state")},
		"logging": map[string]any{"level": "error"},
	}
}

func TestAppLifecycle(t *testing.T) {
	conn := &stubConnector{}
	cfgPath := writeConfig(t, baseConfig(t))
	a, err := NewApp(cfgPath, WithConnector(conn))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))

	require.Eventually(t, func() bool {
		return a.Manager().Status().State == session.StateAwaitingPairing
	}, 2*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"awaiting-pairing"`)

	evs := a.greeting()
	require.Len(t, evs, 1)
	assert.Equal(t, "2@stub-qr-payload-for-tests", evs[0].Data)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))

	select {
	case <-a.Done():
	default:
		t.Fatal("app context still live after Stop")
	}
	require.NotNil(t, conn.last())
	assert.True(t, conn.last().isClosed())
	assert.NoError(t, a.Err())

	st, err := ReadSettings(context.Background(), cfgPath)
	require.NoError(t, err)
	assert.Equal(t, session.DefaultMessage, st.Message)
	assert.False(t, st.IsActive)
	assert.Nil(t, st.Phone)
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig(t)
	cfg["storage"] = map[string]any{"driver": "mongo"}
	_, err := NewApp(writeConfig(t, cfg), WithConnector(&stubConnector{}))
	require.Error(t, err)
}

func TestChangedSections(t *testing.T) {
	prev := &config.Config{Sender: config.SenderConfig{Schedule: "5s"}}
	next := &config.Config{Sender: config.SenderConfig{Schedule: "10s"}, Logging: config.LoggingConfig{Level: "debug"}}
	assert.Equal(t, []string{"sender", "logging"}, changedSections(prev, next))
	assert.Empty(t, changedSections(prev, prev))
	assert.Nil(t, changedSections(nil, next))
}

func TestMapStorageConfig(t *testing.T) {
	sc, err := mapStorageConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, defaultStorePath, sc.Path)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)

	sc, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "File", Path: "/tmp/x"}})
	require.NoError(t, err)
	assert.Equal(t, "file", sc.Driver)

	_, err = mapStorageConfig(&config.Config{Storage: config.StorageConfig{Driver: "mongo"}})
	require.Error(t, err)
}

func TestMapSessionOptions(t *testing.T) {
	opts, err := mapSessionOptions(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, session.DefaultSettleDelay, opts.SettleDelay)
	require.NotNil(t, opts.SendSchedule)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(session.DefaultSendEvery), opts.SendSchedule.Next(from))

	_, err = mapSessionOptions(&config.Config{Sender: config.SenderConfig{Schedule: "nope"}})
	require.Error(t, err)
}
