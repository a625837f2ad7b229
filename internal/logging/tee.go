package logging

import (
	"context"
	"errors"
	"log/slog"
)

// TeeHandler sends every record to each of its handlers that accepts the
// record's level.
type TeeHandler struct {
	handlers []slog.Handler
}

// NewTeeHandler drops nil handlers and returns the rest wrapped together.
func NewTeeHandler(handlers ...slog.Handler) *TeeHandler {
	t := &TeeHandler{}
	for _, h := range handlers {
		if h != nil {
			t.handlers = append(t.handlers, h)
		}
	}
	return t
}

// Enabled reports whether any handler accepts level.
func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle delivers r to all accepting handlers. A failing handler does not
// stop delivery to the others; their errors are joined.
func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs applies attrs to every handler.
func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

// WithGroup applies the group to every handler.
func (t *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t *TeeHandler) derive(f func(slog.Handler) slog.Handler) *TeeHandler {
	out := &TeeHandler{handlers: make([]slog.Handler, len(t.handlers))}
	for i, h := range t.handlers {
		out.handlers[i] = f(h)
	}
	return out
}
