package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/internal/session"
	"wabot/internal/storage"
	"wabot/pkg/logx"
)

const owner = int64(42)

type fakeController struct {
	status   session.Status
	toggles  []bool
	logouts  int
	settings storage.Settings
}

func (f *fakeController) Status() session.Status { return f.status }
func (f *fakeController) Toggle(on bool)         { f.toggles = append(f.toggles, on); f.status.Sending = on }
func (f *fakeController) Logout(context.Context) error {
	f.logouts++
	return nil
}

func (f *fakeController) UpdateSettings(_ context.Context, message string, isActive bool) (storage.Settings, error) {
	f.settings = storage.Settings{Message: message, IsActive: isActive}
	return f.settings, nil
}

func (f *fakeController) GetCurrentSettings(context.Context) (storage.Settings, error) {
	return f.settings, nil
}

func dispatch(t *testing.T, r *Router, from int64, text string) []string {
	t.Helper()
	var replies []string
	err := r.Dispatch(context.Background(), from, from, text, func(s string) error {
		replies = append(replies, s)
		return nil
	})
	require.NoError(t, err)
	return replies
}

func TestOwnerCommands(t *testing.T) {
	ctrl := &fakeController{status: session.Status{State: session.StateConnected, Phone: "15551234567"}}
	r := NewRouter(ctrl, []int64{owner}, logx.Nop())

	replies := dispatch(t, r, owner, "/status")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "State: connected")
	assert.Contains(t, replies[0], "Phone: 15551234567")
	assert.Contains(t, replies[0], "Auto-send: off")

	assert.Equal(t, []string{"Auto-send on."}, dispatch(t, r, owner, "/on@wabot_bot"))
	assert.Equal(t, []string{"Auto-send off."}, dispatch(t, r, owner, "/OFF"))
	assert.Equal(t, []bool{true, false}, ctrl.toggles)

	dispatch(t, r, owner, "/logout")
	assert.Equal(t, 1, ctrl.logouts)
}

func TestMessageCommandKeepsLiveSwitch(t *testing.T) {
	ctrl := &fakeController{status: session.Status{Sending: true}, settings: storage.Settings{Message: "Hello from Bot!"}}
	r := NewRouter(ctrl, []int64{owner}, logx.Nop())

	replies := dispatch(t, r, owner, "/message")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "Message: Hello from Bot!"))

	dispatch(t, r, owner, "/message  good morning ")
	assert.Equal(t, storage.Settings{Message: "good morning", IsActive: true}, ctrl.settings)
}

func TestNonOwnerIsIgnored(t *testing.T) {
	ctrl := &fakeController{}
	r := NewRouter(ctrl, []int64{owner}, logx.Nop())

	assert.Empty(t, dispatch(t, r, 7, "/on"))
	assert.Empty(t, ctrl.toggles)
}

func TestPlainTextAndUnknownCommands(t *testing.T) {
	r := NewRouter(&fakeController{}, []int64{owner}, logx.Nop())
	assert.Empty(t, dispatch(t, r, owner, "hello"))
	assert.Equal(t, []string{"Unknown command. Try /help."}, dispatch(t, r, owner, "/reboot"))

	help := dispatch(t, r, owner, "/help")
	require.Len(t, help, 1)
	for _, name := range []string{"/status", "/on", "/off", "/message", "/logout"} {
		assert.Contains(t, help[0], name)
	}
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, splitText(long, 10))

	assert.Equal(t, []string{"aaaa", "aaaa", "aa"}, splitText(strings.Repeat("a", 10), 4))
}
