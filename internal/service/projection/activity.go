package projection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/domain/model"
)

// ActivityCreatedHandler inserts the Activity projection document.
type ActivityCreatedHandler struct {
	base
}

func NewActivityCreatedHandler(store mongodb.Store, logger *slog.Logger) *ActivityCreatedHandler {
	return &ActivityCreatedHandler{base{
		eventType: "ActivityCreated",
		name:      "ActivityCreatedHandler",
		store:     store,
		logger:    logger,
	}}
}

func (h *ActivityCreatedHandler) Handle(ctx context.Context, ev *model.OutboxEvent) error {
	h.logEvent(ev, "processing_activity_created")

	payload := ev.Payload
	activityID := ev.AggregateID.String()
	creatorID := stringOr(payload, "creator_user_id")

	doc := bson.M{
		"_id":         activityID,
		"title":       stringOr(payload, "title"),
		"description": payload["description"],
		"creator_id":  creatorID,
		"type":        payload["activity_type"],
		"location": bson.M{
			"name":        payload["location_name"],
			"address":     payload["location_address"],
			"coordinates": payload["coordinates"],
		},
		"schedule": bson.M{
			"start_date": payload["start_date"],
			"end_date":   payload["end_date"],
			"timezone":   payload["timezone"],
		},
		"participants": bson.M{
			"current_count": 0,
			"max_count":     payload["max_participants"],
			"list":          []any{},
		},
		"status": "active",
		"metadata": bson.M{
			"created_at":      ev.CreatedAt,
			"updated_at":      time.Now().UTC(),
			"source_event_id": ev.EventID.String(),
		},
		// IDOR list: only the creator may read the document until
		// participants join.
		"allowed_users": []string{creatorID},
	}

	err := h.store.Collection(ActivitiesCollection).InsertOne(ctx, doc)
	if errors.Is(err, model.ErrDuplicateKey) {
		h.logEvent(ev, "activity_created_duplicate_ignored", "activity_id", activityID)
		return nil
	}
	if err != nil {
		h.logError(ev, err)
		return err
	}

	h.logEvent(ev, "activity_created_success",
		"activity_id", activityID,
		"title", stringOr(payload, "title"),
	)
	return nil
}

// ActivityUpdatedHandler applies partial updates to an Activity document.
type ActivityUpdatedHandler struct {
	base
}

func NewActivityUpdatedHandler(store mongodb.Store, logger *slog.Logger) *ActivityUpdatedHandler {
	return &ActivityUpdatedHandler{base{
		eventType: "ActivityUpdated",
		name:      "ActivityUpdatedHandler",
		store:     store,
		logger:    logger,
	}}
}

func (h *ActivityUpdatedHandler) Handle(ctx context.Context, ev *model.OutboxEvent) error {
	h.logEvent(ev, "processing_activity_updated")

	payload := ev.Payload
	activityID := ev.AggregateID.String()

	set := bson.M{}
	if v, ok := payload["title"]; ok {
		set["title"] = v
	}
	if v, ok := payload["description"]; ok {
		set["description"] = v
	}
	if v, ok := payload["status"]; ok {
		set["status"] = v
	}
	if v, ok := payload["location_name"]; ok {
		set["location.name"] = v
	}
	if v, ok := payload["location_address"]; ok {
		set["location.address"] = v
	}
	metadataSet(ev, set)

	res, err := h.store.Collection(ActivitiesCollection).UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{"$set": set},
	)
	if err != nil {
		h.logError(ev, err)
		return err
	}
	if res.MatchedCount == 0 {
		err := &model.NotFoundError{Collection: ActivitiesCollection, Key: activityID}
		h.logError(ev, err)
		return err
	}

	h.logEvent(ev, "activity_updated_success", "activity_id", activityID)
	return nil
}

// ParticipantJoinedHandler records a join on the Activity document. The
// participant insert, the counter increment and the IDOR grant must stay
// replay-safe: the increment fires only when the participant was actually
// absent.
type ParticipantJoinedHandler struct {
	base
}

func NewParticipantJoinedHandler(store mongodb.Store, logger *slog.Logger) *ParticipantJoinedHandler {
	return &ParticipantJoinedHandler{base{
		eventType: "ParticipantJoined",
		name:      "ParticipantJoinedHandler",
		store:     store,
		logger:    logger,
	}}
}

// Validate rejects events whose payload lacks the joining user.
func (h *ParticipantJoinedHandler) Validate(ctx context.Context, ev *model.OutboxEvent) bool {
	return stringOr(ev.Payload, "user_id") != ""
}

func (h *ParticipantJoinedHandler) Handle(ctx context.Context, ev *model.OutboxEvent) error {
	h.logEvent(ev, "processing_participant_joined")

	activityID := ev.AggregateID.String()
	userID := stringOr(ev.Payload, "user_id")
	activities := h.store.Collection(ActivitiesCollection)

	// Guarded increment, step 1: a single-document atomic update that only
	// matches while the participant is absent. $push is safe here because
	// the filter already guarantees absence.
	res, err := activities.UpdateOne(ctx,
		bson.M{
			"_id":                       activityID,
			"participants.list.user_id": bson.M{"$ne": userID},
		},
		bson.M{
			"$push": bson.M{"participants.list": bson.M{
				"user_id":   userID,
				"joined_at": ev.CreatedAt,
				"status":    "confirmed",
			}},
			"$addToSet": bson.M{"allowed_users": userID},
			"$inc":      bson.M{"participants.current_count": 1},
			"$set":      metadataSet(ev, bson.M{}),
		},
	)
	if err != nil {
		h.logError(ev, err)
		return err
	}
	if res.MatchedCount > 0 {
		h.logEvent(ev, "participant_joined_success",
			"activity_id", activityID,
			"user_id", userID,
		)
		return nil
	}

	// Step 2: either the activity is missing or this is a replay. The
	// replay path refreshes the breadcrumb and re-asserts the IDOR grant
	// without touching the counter.
	res, err = activities.UpdateOne(ctx,
		bson.M{"_id": activityID},
		bson.M{
			"$addToSet": bson.M{"allowed_users": userID},
			"$set":      metadataSet(ev, bson.M{}),
		},
	)
	if err != nil {
		h.logError(ev, err)
		return err
	}
	if res.MatchedCount == 0 {
		err := &model.NotFoundError{Collection: ActivitiesCollection, Key: activityID}
		h.logError(ev, err)
		return err
	}

	h.logEvent(ev, "participant_joined_duplicate_ignored",
		"activity_id", activityID,
		"user_id", userID,
	)
	return nil
}
