// Package projection holds the concrete event handlers that materialize the
// read model: each handler encodes one (event_type -> document mutation)
// rule against the projection store. Handlers are stateless and idempotent;
// the store is the authority for every counter and set they touch.
package projection

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/domain/model"
)

// Projection collections.
const (
	UsersCollection      = "users"
	ActivitiesCollection = "activities"
	StatisticsCollection = "statistics"
)

// GlobalStatsKey is the fixed _id of the global statistics document.
const GlobalStatsKey = "global_stats"

// base carries the identity and dependencies every handler shares, plus
// the structured-logging helpers. It provides the default Validate.
type base struct {
	eventType string
	name      string
	store     mongodb.Store
	logger    *slog.Logger
}

func (b *base) EventType() string { return b.eventType }

func (b *base) Name() string { return b.name }

// Validate passes everything by default; handlers with payload
// preconditions override it.
func (b *base) Validate(ctx context.Context, ev *model.OutboxEvent) bool { return true }

func (b *base) logEvent(ev *model.OutboxEvent, action string, args ...any) {
	b.logger.Info(action, append([]any{
		"handler", b.name,
		"event_type", ev.EventType,
		"event_id", ev.EventID.String(),
		"aggregate_id", ev.AggregateID.String(),
	}, args...)...)
}

func (b *base) logError(ev *model.OutboxEvent, err error, args ...any) {
	b.logger.Error("handler_error", append([]any{
		"handler", b.name,
		"event_type", ev.EventType,
		"event_id", ev.EventID.String(),
		"error", err.Error(),
	}, args...)...)
}

// metadataSet is the idempotency breadcrumb refreshed on every mutation.
func metadataSet(ev *model.OutboxEvent, set bson.M) bson.M {
	set["metadata.updated_at"] = time.Now().UTC()
	set["metadata.last_event_id"] = ev.EventID.String()
	return set
}

// fullName derives the display name from first/last parts, trimmed.
func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}

func stringOr(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
