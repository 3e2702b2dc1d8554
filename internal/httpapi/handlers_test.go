package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/internal/session"
	"wabot/internal/storage"
	"wabot/pkg/logx"
)

type fakeController struct {
	settings  storage.Settings
	status    session.Status
	logouts   int
	logoutErr error
}

func (f *fakeController) Status() session.Status { return f.status }

func (f *fakeController) Logout(context.Context) error {
	f.logouts++
	return f.logoutErr
}

func (f *fakeController) UpdateSettings(_ context.Context, message string, isActive bool) (storage.Settings, error) {
	f.settings.Message = message
	f.settings.IsActive = isActive
	return f.settings, nil
}

func (f *fakeController) GetCurrentSettings(context.Context) (storage.Settings, error) {
	return f.settings, nil
}

func do(t *testing.T, s *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetSettings(t *testing.T) {
	phone := "15551234567"
	ctrl := &fakeController{settings: storage.Settings{Message: "Hello from Bot!", Phone: &phone}}
	s := New(Config{}, ctrl, logx.Nop())

	rec := do(t, s, http.MethodGet, "/api/settings", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isActive":false,"message":"Hello from Bot!","phone":"15551234567"}`, rec.Body.String())
}

func TestUpdateSettingsJSON(t *testing.T) {
	ctrl := &fakeController{}
	s := New(Config{}, ctrl, logx.Nop())

	rec := do(t, s, http.MethodPost, "/api/settings", echo.MIMEApplicationJSON, `{"message":"Hi","isActive":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi", ctrl.settings.Message)
	assert.True(t, ctrl.settings.IsActive)
}

func TestUpdateSettingsForm(t *testing.T) {
	ctrl := &fakeController{}
	s := New(Config{}, ctrl, logx.Nop())

	form := url.Values{"message": {"From the form"}, "isActive": {"on"}}
	rec := do(t, s, http.MethodPost, "/api/settings", echo.MIMEApplicationForm, form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "From the form", ctrl.settings.Message)
	assert.True(t, ctrl.settings.IsActive)

	// An unchecked box is simply absent.
	form = url.Values{"message": {"Off again"}}
	rec = do(t, s, http.MethodPost, "/api/settings", echo.MIMEApplicationForm, form.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ctrl.settings.IsActive)
}

func TestUpdateSettingsRejectsBadPayload(t *testing.T) {
	s := New(Config{}, &fakeController{}, logx.Nop())

	rec := do(t, s, http.MethodPost, "/api/settings", echo.MIMEApplicationJSON, `{"isActive":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("x", maxMessageLen+1)
	rec = do(t, s, http.MethodPost, "/api/settings", echo.MIMEApplicationJSON, `{"message":"`+long+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	ctrl := &fakeController{}
	s := New(Config{}, ctrl, logx.Nop())

	rec := do(t, s, http.MethodPost, "/api/logout", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.logouts)

	ctrl.logoutErr = errors.New("stopped")
	rec = do(t, s, http.MethodPost, "/api/logout", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusAndHealth(t *testing.T) {
	ctrl := &fakeController{status: session.Status{State: session.StateConnected, Phone: "15551234567", Sending: true, SchedulerRunning: true}}
	s := New(Config{}, ctrl, logx.Nop(), WithHealth(func() any { return map[string]int{"tasks": 4} }))

	rec := do(t, s, http.MethodGet, "/api/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"connected","phone":"15551234567","sending":true,"schedulerRunning":true}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["session"])
	assert.Equal(t, map[string]any{"tasks": float64(4)}, body["runtime"])
}

func TestWebSocketRouteMounted(t *testing.T) {
	called := false
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	s := New(Config{}, &fakeController{}, logx.Nop(), WithWebSocket(ws))

	rec := do(t, s, http.MethodGet, "/ws", "", "")
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	s := New(Config{}, &fakeController{}, logx.Nop())
	rec := do(t, s, http.MethodGet, "/debug/pprof/", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s = New(Config{}, &fakeController{}, logx.Nop(), WithPprof())
	rec = do(t, s, http.MethodGet, "/debug/pprof/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")

	rec = do(t, s, http.MethodGet, "/debug/pprof/goroutine?debug=1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
