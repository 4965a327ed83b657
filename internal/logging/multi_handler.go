package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// repeatWindow is the interval over which identical records are counted.
const repeatWindow = time.Second

// MultiHandler fans records out to several handlers. Records from the
// frame loop repeat at frame rate when a device or sink misbehaves, so a
// MultiHandler with a limiter passes only the first burst of each
// module/message pair per window and reports the rest as suppressed on
// the next record that passes.
type MultiHandler struct {
	handlers []slog.Handler
	limiter  *repeatLimiter
	module   string
}

// NewMultiHandler creates a handler that writes to all provided handlers
// without suppression.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// newLimitedHandler creates a MultiHandler that lets through burst
// identical records per window. A burst of zero or less disables the limit.
func newLimitedHandler(burst int, handlers ...slog.Handler) *MultiHandler {
	m := &MultiHandler{handlers: handlers}
	if burst > 0 {
		m.limiter = newRepeatLimiter(burst, repeatWindow)
	}
	return m
}

// Enabled implements slog.Handler.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	if m.limiter != nil {
		pass, suppressed := m.limiter.allow(m.module+"\x00"+r.Message, r.Time)
		if !pass {
			return nil
		}
		if suppressed > 0 {
			r = r.Clone()
			r.AddAttrs(slog.Int("suppressed", suppressed))
		}
	}
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

// WithAttrs implements slog.Handler. A "module" attribute scopes the
// repeat limit.
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := m.clone()
	for i, h := range m.handlers {
		next.handlers[i] = h.WithAttrs(attrs)
	}
	for _, a := range attrs {
		if a.Key == "module" {
			next.module = a.Value.String()
		}
	}
	return next
}

// WithGroup implements slog.Handler.
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	next := m.clone()
	for i, h := range m.handlers {
		next.handlers[i] = h.WithGroup(name)
	}
	return next
}

func (m *MultiHandler) clone() *MultiHandler {
	return &MultiHandler{
		handlers: make([]slog.Handler, len(m.handlers)),
		limiter:  m.limiter,
		module:   m.module,
	}
}

// repeatLimiter counts records per key in fixed windows.
type repeatLimiter struct {
	burst  int
	window time.Duration

	mu   sync.Mutex
	seen map[string]*repeatCount
}

type repeatCount struct {
	start   time.Time
	passed  int
	dropped int
}

func newRepeatLimiter(burst int, window time.Duration) *repeatLimiter {
	return &repeatLimiter{burst: burst, window: window, seen: make(map[string]*repeatCount)}
}

// allow reports whether a record with key at now passes, and how many
// records of that key the previous window dropped.
func (l *repeatLimiter) allow(key string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.seen[key]
	if c == nil || now.Sub(c.start) >= l.window {
		dropped := 0
		if c != nil {
			dropped = c.dropped
		}
		l.seen[key] = &repeatCount{start: now, passed: 1}
		return true, dropped
	}
	if c.passed < l.burst {
		c.passed++
		return true, 0
	}
	c.dropped++
	return false, 0
}
