package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// SlogLogger adapts a slog.Logger to Logger
type SlogLogger struct {
	logger *slog.Logger
	prefix string
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger prefixes every message with prefix when set
func NewSlogLogger(logger *slog.Logger, prefix string) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger, prefix: prefix}
}

func (l *SlogLogger) Debug(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *SlogLogger) Info(format string, args ...any) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *SlogLogger) Warn(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *SlogLogger) Error(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l *SlogLogger) log(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + " " + msg
	}
	l.logger.Log(ctx, level, msg)
}
