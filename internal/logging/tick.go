package logging

import (
	"context"
	"log/slog"
)

// TickHandler adds the current tick number to every record logged while the
// tick loop is running.
type TickHandler struct {
	inner slog.Handler
	tick  func() uint64
}

// NewTickHandler wraps inner. tick is called once per record.
func NewTickHandler(inner slog.Handler, tick func() uint64) *TickHandler {
	return &TickHandler{inner: inner, tick: tick}
}

func (h *TickHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle skips the attribute before the first tick.
func (h *TickHandler) Handle(ctx context.Context, r slog.Record) error {
	if n := h.tick(); n > 0 {
		r.AddAttrs(slog.Uint64("tick", n))
	}
	return h.inner.Handle(ctx, r)
}

func (h *TickHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TickHandler{inner: h.inner.WithAttrs(attrs), tick: h.tick}
}

func (h *TickHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &TickHandler{inner: h.inner.WithGroup(name), tick: h.tick}
}
