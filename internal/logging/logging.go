// Package logging sets up the process-wide structured logger, tagging
// every record with a component name on top of slog's leveled,
// field-based logging.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// tagHandler carries a component attribute through every record while
// still emitting structured attrs for anything beyond the tag.
type tagHandler struct {
	inner slog.Handler
}

func (h *tagHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *tagHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *tagHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tagHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *tagHandler) WithGroup(name string) slog.Handler {
	return &tagHandler{inner: h.inner.WithGroup(name)}
}

// New returns a logger tagged with the given component name, e.g.
// logging.New("ws") logs with component="ws" on every record.
func New(component string) *slog.Logger {
	return base().With(slog.String("component", component))
}

var baseLogger *slog.Logger

func base() *slog.Logger {
	if baseLogger != nil {
		return baseLogger
	}
	level := slog.LevelInfo
	if os.Getenv("LOG_DEBUG") != "" {
		level = slog.LevelDebug
	}
	h := &tagHandler{inner: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})}
	baseLogger = slog.New(h)
	return baseLogger
}
