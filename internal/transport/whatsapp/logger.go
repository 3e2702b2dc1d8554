package whatsapp

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wabot/pkg/logx"
)

// waLogger routes whatsmeow's printf-style logging into logx. The library is
// chatty, so it gets its own threshold on top of the service level.
type waLogger struct {
	log    logx.Logger
	min    zerolog.Level
	module string
}

func newWALogger(log logx.Logger, level, module string) waLog.Logger {
	min, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || strings.TrimSpace(level) == "" {
		min = zerolog.WarnLevel
	}
	return waLogger{log: log.With(logx.String("wa", module)), min: min, module: module}
}

func (l waLogger) Debugf(msg string, args ...any) {
	if l.min <= zerolog.DebugLevel {
		l.log.Debug(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Infof(msg string, args ...any) {
	if l.min <= zerolog.InfoLevel {
		l.log.Info(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Warnf(msg string, args ...any) {
	if l.min <= zerolog.WarnLevel {
		l.log.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Errorf(msg string, args ...any) {
	if l.min <= zerolog.ErrorLevel {
		l.log.Error(fmt.Sprintf(msg, args...))
	}
}

func (l waLogger) Sub(module string) waLog.Logger {
	name := module
	if l.module != "" {
		name = l.module + "/" + module
	}
	return waLogger{log: l.log.With(logx.String("wa", name)), min: l.min, module: name}
}
