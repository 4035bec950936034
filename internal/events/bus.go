// Package events distributes domain events to in-process subscribers and, optionally,
// to a NATS subject per event kind.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/IsItStolen/internal/models"
)

// Handler receives a published event.
type Handler func(ctx context.Context, ev models.Event) error

// Bus publishes domain events to subscribers.
type Bus interface {
	Publish(ctx context.Context, ev models.Event) error
	Subscribe(kind models.EventKind, h Handler)
}

// InMemoryBus delivers events synchronously to every subscriber of the event kind.
// Subscriber errors are logged and never returned to the publisher.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[models.EventKind][]Handler
}

// Ensure InMemoryBus satisfies the Bus interface.
var _ Bus = (*InMemoryBus)(nil)

// NewInMemoryBus creates a bus with no subscribers.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[models.EventKind][]Handler)}
}

// Subscribe registers h for events of the given kind.
func (b *InMemoryBus) Subscribe(kind models.EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
	slog.Debug("InMemoryBus subscribed", "kind", kind, "subscribers", len(b.handlers[kind]))
}

// Publish calls every subscriber of ev.Kind() in registration order.
func (b *InMemoryBus) Publish(ctx context.Context, ev models.Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Kind()]...)
	b.mu.RUnlock()

	slog.Debug("InMemoryBus publishing", "kind", ev.Kind(), "report_id", ev.ReportID(), "subscribers", len(handlers))
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			slog.Error("Event handler failed", "kind", ev.Kind(), "report_id", ev.ReportID(), "error", err)
		}
	}
	return nil
}

// NopBus drops every event.
type NopBus struct{}

func (NopBus) Publish(context.Context, models.Event) error { return nil }
func (NopBus) Subscribe(models.EventKind, Handler) {}
