package logging

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// WALogger adapts an slog.Logger to the whatsmeow logger interface.
type WALogger struct {
	logger *slog.Logger
}

var _ waLog.Logger = WALogger{}

// NewWALogger returns a whatsmeow logger writing to logger under module.
func NewWALogger(logger *slog.Logger, module string) WALogger {
	if logger == nil {
		logger = slog.Default()
	}
	return WALogger{logger: logger.With("module", module)}
}

func (l WALogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l WALogger) Warnf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l WALogger) Infof(msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...))
}

func (l WALogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

// Sub returns a logger for a nested whatsmeow module, e.g. "Client/Socket".
func (l WALogger) Sub(module string) waLog.Logger {
	return WALogger{logger: l.logger.With("submodule", module)}
}
