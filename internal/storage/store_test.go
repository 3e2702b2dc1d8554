package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabot/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{}
	for _, driver := range []string{"sqlite", "file"} {
		st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "wabot.db")}, logx.Nop())
		require.NoError(t, err, driver)
		t.Cleanup(func() { _ = st.Close() })
		out[driver] = st
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func TestSettingsLifecycle(t *testing.T) {
	for driver, st := range openStores(t) {
		st := st
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.GetSettings(ctx)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, st.UpdateSettings(ctx, SettingsPatch{IsActive: ptr(true)}), ErrNotFound)

			got, err := st.EnsureSettings(ctx, Settings{Message: "Hello from Bot!"})
			require.NoError(t, err)
			assert.Equal(t, Settings{Message: "Hello from Bot!"}, got)

			// Ensure does not overwrite an existing row.
			require.NoError(t, st.UpdateSettings(ctx, SettingsPatch{Message: ptr("Hi"), IsActive: ptr(true)}))
			got, err = st.EnsureSettings(ctx, Settings{Message: "ignored"})
			require.NoError(t, err)
			assert.Equal(t, "Hi", got.Message)
			assert.True(t, got.IsActive)
			assert.Nil(t, got.Phone)

			// Phone updates leave the message untouched.
			require.NoError(t, st.UpdateSettings(ctx, SettingsPatch{PhoneSet: true, Phone: ptr("15550001111"), IsActive: ptr(false)}))
			got, err = st.GetSettings(ctx)
			require.NoError(t, err)
			require.NotNil(t, got.Phone)
			assert.Equal(t, "15550001111", *got.Phone)
			assert.Equal(t, "Hi", got.Message)
			assert.False(t, got.IsActive)

			require.NoError(t, st.UpdateSettings(ctx, SettingsPatch{PhoneSet: true}))
			got, err = st.GetSettings(ctx)
			require.NoError(t, err)
			assert.Nil(t, got.Phone)
		})
	}
}

func TestCredentials(t *testing.T) {
	for driver, st := range openStores(t) {
		st := st
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.LoadCredentials(ctx, "default")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.SaveCredentials(ctx, "default", []byte(`{"jid":"1"}`)))
			require.NoError(t, st.SaveCredentials(ctx, "default", []byte(`{"jid":"2"}`)))
			require.NoError(t, st.SaveCredentials(ctx, "other", []byte{0x00, 0xff}))

			blob, err := st.LoadCredentials(ctx, "default")
			require.NoError(t, err)
			assert.Equal(t, `{"jid":"2"}`, string(blob))

			blob, err = st.LoadCredentials(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, []byte{0x00, 0xff}, blob)

			require.NoError(t, st.PurgeCredentials(ctx))
			_, err = st.LoadCredentials(ctx, "default")
			require.ErrorIs(t, err, ErrNotFound)
			_, err = st.LoadCredentials(ctx, "other")
			require.ErrorIs(t, err, ErrNotFound)

			// Purging an empty store is fine.
			require.NoError(t, st.PurgeCredentials(ctx))
		})
	}
}

func TestAppendAudit(t *testing.T) {
	for driver, st := range openStores(t) {
		st := st
		t.Run(driver, func(t *testing.T) {
			require.NoError(t, st.AppendAudit(context.Background(), AuditEntry{Action: "logout", Session: "default", OK: true}))
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mongo", Path: "x"}, logx.Nop())
	require.Error(t, err)
}
