package events

import (
	"context"
	"log/slog"
	"sync"
)

// Bus is the minimal publish interface the consumption loop depends on.
type Bus interface {
	Publish(ctx context.Context, event Event) error
}

// Handler processes one published event.
type Handler func(ctx context.Context, event Event) error

// InProcessBus dispatches events to subscribers in the publishing
// goroutine. Publish returns the first handler error so the caller can
// decide whether the message that produced the event was handled.
type InProcessBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewInProcessBus creates an empty bus.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	return &InProcessBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event name.
func (b *InProcessBus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers the event to every subscriber of its name. Handlers
// after a failing one still run; the first error is returned.
func (b *InProcessBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Name()]
	b.mu.RUnlock()

	var firstErr error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if b.logger != nil {
				b.logger.Error("event handler failed",
					"event", event.Name(),
					"key", event.Key(),
					"error", err,
				)
			}
		}
	}
	return firstErr
}
