package logconfig

import (
	"context"
	"log/slog"
	"sync"
)

// BufferedHandler is a slog.Handler that holds records back until Flush is
// first called, then becomes a passthrough. It exists so the coordinator
// can log during startup before the logging configuration has been read:
// once the configuration is applied the buffered records are emitted with
// the configured severity filter in effect.
type BufferedHandler struct {
	inner slog.Handler
	state *bufferState
}

// bufferState is shared across WithAttrs/WithGroup derivations so a flush
// through any of them releases every buffered record.
type bufferState struct {
	mu      sync.Mutex
	records []bufferedRecord
	flushed bool
}

// bufferedRecord remembers the derived handler the record was logged
// through, so attributes and groups attached before the flush survive it.
type bufferedRecord struct {
	handler slog.Handler
	record  slog.Record
}

// NewBufferedHandler wraps inner in a buffering layer.
func NewBufferedHandler(inner slog.Handler) *BufferedHandler {
	return &BufferedHandler{
		inner: inner,
		state: &bufferState{},
	}
}

// Enabled reports all levels as enabled until the flush; the configured
// level filter is applied when the buffer drains.
func (h *BufferedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	h.state.mu.Lock()
	flushed := h.state.flushed
	h.state.mu.Unlock()

	if !flushed {
		return true
	}
	return h.inner.Enabled(ctx, level)
}

// Handle buffers the record, or forwards it after the flush.
func (h *BufferedHandler) Handle(ctx context.Context, record slog.Record) error {
	h.state.mu.Lock()
	if !h.state.flushed {
		h.state.records = append(h.state.records, bufferedRecord{
			handler: h.inner,
			record:  record.Clone(),
		})
		h.state.mu.Unlock()
		return nil
	}
	h.state.mu.Unlock()

	return h.inner.Handle(ctx, record)
}

// WithAttrs derives a handler sharing this handler's buffer.
func (h *BufferedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &BufferedHandler{
		inner: h.inner.WithAttrs(attrs),
		state: h.state,
	}
}

// WithGroup derives a handler sharing this handler's buffer.
func (h *BufferedHandler) WithGroup(name string) slog.Handler {
	return &BufferedHandler{
		inner: h.inner.WithGroup(name),
		state: h.state,
	}
}

// Flush emits all buffered records through their original handlers and
// turns the buffer into a passthrough. Records below the now-effective
// level are dropped. Flushing twice is harmless.
func (h *BufferedHandler) Flush() {
	h.state.mu.Lock()
	if h.state.flushed {
		h.state.mu.Unlock()
		return
	}
	h.state.flushed = true
	buffered := h.state.records
	h.state.records = nil
	h.state.mu.Unlock()

	ctx := context.Background()
	for _, entry := range buffered {
		if entry.handler.Enabled(ctx, entry.record.Level) {
			_ = entry.handler.Handle(ctx, entry.record)
		}
	}
}
