package projection

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/domain/registry"
)

// NewHandlers builds every projection handler in registration order. This
// is the one place to touch when a new event type arrives.
func NewHandlers(store mongodb.Store, logger *slog.Logger) []registry.Handler {
	return []registry.Handler{
		// User handlers. The statistics handler listens to UserCreated too.
		NewUserCreatedHandler(store, logger),
		NewUserStatisticsHandler(store, logger),
		NewUserUpdatedHandler(store, logger),

		// Activity handlers.
		NewActivityCreatedHandler(store, logger),
		NewActivityUpdatedHandler(store, logger),
		NewParticipantJoinedHandler(store, logger),
	}
}

// RegisterAll installs the handlers into the registry and freezes it; no
// registration happens after the consumer takes over.
func RegisterAll(reg *registry.Registry, handlers []registry.Handler, logger *slog.Logger) {
	for _, h := range handlers {
		reg.Register(h)
	}
	reg.Freeze()

	for _, eventType := range reg.EventTypes() {
		names := make([]string, 0, 2)
		for _, h := range reg.GetHandlers(eventType) {
			names = append(names, h.Name())
		}
		logger.Info("handlers_registered",
			"event_type", eventType,
			"handlers", names,
			"count", len(names),
		)
	}
}

var Module = fx.Module("projection",
	fx.Provide(NewHandlers),
	fx.Invoke(RegisterAll),
)
