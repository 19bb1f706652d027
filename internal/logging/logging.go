// Package logging provides the slog-based structured logging the rest of
// this module builds on: a package-level default logger switchable
// between a JSON handler (production) and a text handler (development), a
// context-carried logger, and a block of reserved field-name constants so
// call sites never hand-roll a key string.
package logging

import (
	"context"
	"log/slog"
	"os"
)

var defaultLogger = newLogger(false)

func newLogger(development bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo, AddSource: development}
	var handler slog.Handler
	if development {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// Init (re)configures the default logger. env == "development"/"dev"
// selects the text handler; anything else selects JSON.
func Init(env string) {
	dev := env == "development" || env == "dev"
	defaultLogger = newLogger(dev)
	slog.SetDefault(defaultLogger)
}

type ctxKey struct{}

// WithContext returns a context carrying l, retrievable via FromContext.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger injected by WithContext, or the default
// logger if none was injected.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return defaultLogger
}

// Default returns the package-level default logger.
func Default() *slog.Logger { return defaultLogger }

// Reserved structured field names. Components must use these constants
// rather than hardcoding the key string, so log consumers can rely on a
// stable schema across the codebase.
const (
	FieldAgentID    = "agent_id"
	FieldSignalID   = "signal_id"
	FieldSignalType = "signal_type"
	FieldDirective  = "directive"
	FieldThreadID   = "thread_id"
	FieldManager    = "manager"
	FieldComponent  = "component"
	FieldModule     = "module"
	FieldError      = "error"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldQueueLen   = "queue_len"
	FieldAdapter    = "adapter"
	FieldTag        = "tag"
)
