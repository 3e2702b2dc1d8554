package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(level zerolog.Level) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(level)
	return Logger{root: func() zerolog.Logger { return zl }}, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	return m
}

func TestLoggerFieldsAndCaller(t *testing.T) {
	t.Parallel()
	log, buf := captured(zerolog.DebugLevel)
	log = log.With(String("comp", "session"), String("state", "old"))

	log.Warn("closed", String("state", "closing"), Int("reason", 401), Err(nil))
	m := decodeLine(t, buf)
	assert.Equal(t, "closed", m["message"])
	assert.Equal(t, "session", m["comp"])
	assert.Equal(t, "closing", m["state"])
	assert.EqualValues(t, 401, m["reason"])
	assert.NotContains(t, m, "error")
	assert.Contains(t, m[zerolog.CallerFieldName], "logger_test.go:")
}

func TestLoggerRespectsLevel(t *testing.T) {
	t.Parallel()
	log, buf := captured(zerolog.InfoLevel)
	log.Debug("hidden")
	assert.Zero(t, buf.Len())

	log.Error("shown", Err(errors.New("boom")))
	assert.NotZero(t, buf.Len())
}

func TestPhoneIsMasked(t *testing.T) {
	t.Parallel()
	log, buf := captured(zerolog.DebugLevel)
	log.Info("connected", Phone("15551234567"))
	assert.Equal(t, "*******4567", decodeLine(t, buf)["phone"])

	assert.Equal(t, "123", maskPhone(" 123 "))
	assert.Empty(t, maskPhone(""))
}

func TestStackSkipsEmptyDump(t *testing.T) {
	t.Parallel()
	log, buf := captured(zerolog.DebugLevel)
	log.Error("panic", Stack(nil))
	assert.NotContains(t, decodeLine(t, buf), "stack")
}
