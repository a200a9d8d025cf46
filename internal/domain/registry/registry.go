// Package registry maps event types to the ordered list of projection
// handlers subscribed to them. Registration happens once at startup; the
// registry is frozen before the consumer starts pulling records.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/activityhub/event-processor/internal/domain/model"
)

// Handler is the capability set every projection handler satisfies. A
// handler is stateless: all state lives in the projection store, and Handle
// must be safe to re-invoke for the same event (at-least-once delivery).
type Handler interface {
	// EventType is the dispatch key this handler listens to.
	EventType() string
	// Name is a stable identifier for logs and metrics.
	Name() string
	// Validate is an optional pre-check. Returning false makes the
	// dispatcher skip this handler; it is not an error.
	Validate(ctx context.Context, ev *model.OutboxEvent) bool
	// Handle performs the projection write.
	Handle(ctx context.Context, ev *model.OutboxEvent) error
}

// Registry routes one event type to one-or-more handlers. Multiple handlers
// may subscribe to the same event type; dispatch order is registration
// order.
type Registry struct {
	mu       sync.RWMutex
	frozen   bool
	handlers map[string][]Handler
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register appends the handler to the list for its event type. Registering
// after Freeze is a wiring bug and is rejected loudly.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		r.logger.Error("handler_registered_after_freeze",
			"handler", h.Name(),
			"event_type", h.EventType(),
		)
		return
	}

	r.handlers[h.EventType()] = append(r.handlers[h.EventType()], h)
	r.logger.Debug("handler_registered",
		"event_type", h.EventType(),
		"handler", h.Name(),
	)
}

// Freeze closes the registry for further registration. Called once the
// registry is handed to the consumer.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// GetHandlers returns the handlers for an event type in registration order.
// An empty result is not an error; the dispatcher logs and skips.
func (r *Registry) GetHandlers(eventType string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[eventType]
}

// HasHandlers reports whether at least one handler listens to eventType.
func (r *Registry) HasHandlers(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventType]) > 0
}

// EventTypes returns all registered event types, sorted for stable logging.
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
