// Package logger configures the application slog logger and carries a per-request logger in the request context.
//
// Use ContextRequestLogger in handlers and services to log with the request id, method and path attached.
// Use ContextWithLogAttrs to add attributes to the single log line written when the request completes.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LevelNone is above every level used by the application, it silences the logger (used by tests).
const LevelNone = slog.Level(12)

// ParseLogLevel converts debug, info, warn, error or none to a slog level. Unknown values return info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return LevelNone
	default:
		return slog.LevelInfo
	}
}

// InitLogger creates the application logger and sets it as the slog default.
// dev and test environments use colourised text output; staging and prod use JSON.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	return initLogger(os.Stdout, level, environment)
}

func initLogger(w io.Writer, level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler
	switch environment {
	case "prod", "staging":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

type contextKey int

const (
	requestLoggerKey contextKey = iota
	logAttrsKey
)

// logAttrs collects attributes added while a request is handled.
type logAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// ContextRequestLogger returns the request logger stored in ctx, or the default logger.
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithRequestLogger returns a copy of ctx carrying l.
func WithRequestLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey, l)
}

// ContextWithLogAttrs adds attrs to the completion log line of the current request.
// It is a no-op outside the RequestLogging middleware.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	la, ok := ctx.Value(logAttrsKey).(*logAttrs)
	if !ok {
		return
	}
	la.mu.Lock()
	la.attrs = append(la.attrs, attrs...)
	la.mu.Unlock()
}

func contextLogAttrs(ctx context.Context) []slog.Attr {
	la, ok := ctx.Value(logAttrsKey).(*logAttrs)
	if !ok {
		return nil
	}
	la.mu.Lock()
	defer la.mu.Unlock()
	return append([]slog.Attr(nil), la.attrs...)
}
