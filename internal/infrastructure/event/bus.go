package event

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types published by the core components for UI-facing observers
// (toasts, badges, screen refreshes).
const (
	TypeRateRefreshed   = "rate.refreshed"
	TypeRateFetchFailed = "rate.fetch_failed"
	TypeRateStaleServed = "rate.stale_served"
	TypeQueueOnline     = "queue.online"
	TypeQueueOffline    = "queue.offline"
	TypeActionCompleted = "queue.action_completed"
	TypeActionFailed    = "queue.action_failed"
	TypeClaimsUpdated   = "claims.updated"
)

// Event is one typed message passed between the core and its observers.
type Event struct {
	Type       string
	OccurredAt time.Time
	Fields     map[string]any
}

// New builds an event stamped with the current time.
func New(eventType string, fields map[string]any) Event {
	return Event{Type: eventType, OccurredAt: time.Now(), Fields: fields}
}

// Handler processes one published event.
type Handler func(Event)

// Bus is an in-process pub/sub bus with per-type handler registration.
// Dispatch is synchronous and panic-isolated per handler.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int
	logger   *zap.Logger
}

// NewBus creates a new in-memory event bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string]map[int]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for the given event types and returns an
// unsubscribe function.
func (b *Bus) Subscribe(handler Handler, eventTypes ...string) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	for _, t := range eventTypes {
		if b.handlers[t] == nil {
			b.handlers[t] = make(map[int]Handler)
		}
		b.handlers[t][id] = handler
	}

	types := eventTypes
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, t := range types {
			delete(b.handlers[t], id)
		}
	}
}

// Publish dispatches an event to all handlers registered for its type.
// A failing handler never affects its siblings.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	registered := make([]Handler, 0, len(b.handlers[evt.Type]))
	for _, h := range b.handlers[evt.Type] {
		registered = append(registered, h)
	}
	b.mu.RUnlock()

	for _, h := range registered {
		b.dispatch(h, evt)
	}
}

func (b *Bus) dispatch(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event_type", evt.Type),
				zap.Any("panic", r),
			)
		}
	}()
	h(evt)
}
