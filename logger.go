// Package sagabus logger.
// Provides structured logging using log/slog, with saga/request-scoped
// helpers so the dispatcher, reply reader, and saga executor don't each
// hand-build the same "saga_id"/"correlation_id"/"request_id" attr lists.
package sagabus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogHandler is the interface for custom log handlers.
type LogHandler func(level slog.Level, msg string, attrs ...slog.Attr)

type Logger struct {
	slog    *slog.Logger
	handler LogHandler
	silent  bool
}

type LoggerConfig struct {
	Level   slog.Level
	Handler LogHandler
	Silent  bool
	Output  io.Writer
}

func NewLogger(prefix string, config ...LoggerConfig) *Logger {
	cfg := LoggerConfig{Level: slog.LevelInfo}
	if len(config) > 0 {
		cfg = config[0]
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var slogHandler slog.Handler

	if cfg.Silent && cfg.Handler == nil {
		slogHandler = slog.NewTextHandler(io.Discard, opts)
	} else {
		slogHandler = slog.NewTextHandler(output, opts)
	}

	return &Logger{
		slog:    slog.New(slogHandler).With("component", prefix),
		handler: cfg.Handler,
		silent:  cfg.Silent,
	}
}

func (l *Logger) SetHandler(handler LogHandler) {
	l.handler = handler
}

func (l *Logger) SetSilent(silent bool) {
	l.silent = silent
}

// log is the single dispatch point every level method funnels through:
// notify the embedding app's handler hook (if any), then emit through
// slog unless silenced.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	if l.handler != nil {
		l.handler(level, msg)
	}
	if l.silent {
		return
	}
	switch level {
	case slog.LevelDebug:
		l.slog.Debug(msg, args...)
	case slog.LevelWarn:
		l.slog.Warn(msg, args...)
	case slog.LevelError:
		l.slog.Error(msg, args...)
	default:
		l.slog.Info(msg, args...)
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:    l.slog.With(args...),
		handler: l.handler,
		silent:  l.silent,
	}
}

// WithSaga scopes l to a saga instance: every subsequent log line carries
// saga_id and correlation_id, sparing callers like the saga executor from
// repeating the pair at every call site.
func (l *Logger) WithSaga(sagaID, correlationID string) *Logger {
	return l.With("saga_id", sagaID, "correlation_id", correlationID)
}

// WithRequest scopes l to a single request/reply exchange: every
// subsequent log line carries request_id, for the reply reader and
// coordinator's read/retry loops.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.With("request_id", requestID)
}

// LifecycleEvent logs one of the fixed start/progress/completed/failed
// events the multi-stage wrapper and reply reader observe, at the level
// appropriate to its status: failed is a warning, everything else is
// informational. Callers scope l with WithRequest (or WithSaga) first;
// LifecycleEvent does not repeat those identifiers itself.
func (l *Logger) LifecycleEvent(status EventStatus) {
	if status == StatusFailed {
		l.Warn("lifecycle event", "status", string(status))
		return
	}
	l.Info("lifecycle event", "status", string(status))
}

// DefaultLogger for package-level logging
var DefaultLogger = NewLogger("sagabus")

// ParseLevel maps the LOG_LEVEL environment variable to an
// slog.Level. Unrecognized values fall back to Debug, matching the
// documented default.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Context-aware logging
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slog.DebugContext(ctx, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slog.InfoContext(ctx, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slog.WarnContext(ctx, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slog.ErrorContext(ctx, msg, args...)
}
