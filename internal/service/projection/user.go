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

// UserCreatedHandler inserts the primary User projection document.
type UserCreatedHandler struct {
	base
}

func NewUserCreatedHandler(store mongodb.Store, logger *slog.Logger) *UserCreatedHandler {
	return &UserCreatedHandler{base{
		eventType: "UserCreated",
		name:      "UserCreatedHandler",
		store:     store,
		logger:    logger,
	}}
}

func (h *UserCreatedHandler) Handle(ctx context.Context, ev *model.OutboxEvent) error {
	h.logEvent(ev, "processing_user_created")

	payload := ev.Payload
	userID := ev.AggregateID.String()

	doc := bson.M{
		"_id":        userID,
		"email":      stringOr(payload, "email"),
		"username":   stringOr(payload, "username"),
		"name":       fullName(stringOr(payload, "first_name"), stringOr(payload, "last_name")),
		"first_name": stringOr(payload, "first_name"),
		"last_name":  stringOr(payload, "last_name"),
		"profile": bson.M{
			"bio":        payload["bio"],
			"avatar_url": payload["avatar_url"],
		},
		"metadata": bson.M{
			"created_at":      ev.CreatedAt,
			"updated_at":      time.Now().UTC(),
			"source_event_id": ev.EventID.String(),
		},
		// IDOR list: the user may read their own document.
		"allowed_users": []string{userID},
	}

	err := h.store.Collection(UsersCollection).InsertOne(ctx, doc)
	if errors.Is(err, model.ErrDuplicateKey) {
		// Replayed delivery; the first insert won.
		h.logEvent(ev, "user_created_duplicate_ignored", "user_id", userID)
		return nil
	}
	if err != nil {
		h.logError(ev, err)
		return err
	}

	h.logEvent(ev, "user_created_success",
		"user_id", userID,
		"username", stringOr(payload, "username"),
	)
	return nil
}

// UserUpdatedHandler applies partial updates to an existing User document.
type UserUpdatedHandler struct {
	base
}

func NewUserUpdatedHandler(store mongodb.Store, logger *slog.Logger) *UserUpdatedHandler {
	return &UserUpdatedHandler{base{
		eventType: "UserUpdated",
		name:      "UserUpdatedHandler",
		store:     store,
		logger:    logger,
	}}
}

func (h *UserUpdatedHandler) Handle(ctx context.Context, ev *model.OutboxEvent) error {
	h.logEvent(ev, "processing_user_updated")

	payload := ev.Payload
	userID := ev.AggregateID.String()

	set := bson.M{}
	if v, ok := payload["email"]; ok {
		set["email"] = v
	}
	if v, ok := payload["username"]; ok {
		set["username"] = v
	}
	_, hasFirst := payload["first_name"]
	_, hasLast := payload["last_name"]
	if hasFirst || hasLast {
		first := stringOr(payload, "first_name")
		last := stringOr(payload, "last_name")
		set["name"] = fullName(first, last)
		set["first_name"] = first
		set["last_name"] = last
	}
	if v, ok := payload["bio"]; ok {
		set["profile.bio"] = v
	}
	if v, ok := payload["avatar_url"]; ok {
		set["profile.avatar_url"] = v
	}
	metadataSet(ev, set)

	res, err := h.store.Collection(UsersCollection).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": set},
	)
	if err != nil {
		h.logError(ev, err)
		return err
	}
	if res.MatchedCount == 0 {
		err := &model.NotFoundError{Collection: UsersCollection, Key: userID}
		h.logError(ev, err)
		return err
	}

	h.logEvent(ev, "user_updated_success",
		"user_id", userID,
		"modified_count", res.ModifiedCount,
	)
	return nil
}

// UserStatisticsHandler also listens to UserCreated and bumps the global
// user counter as a side effect. Multiple handlers per event type is the
// point of the registry.
type UserStatisticsHandler struct {
	base
}

func NewUserStatisticsHandler(store mongodb.Store, logger *slog.Logger) *UserStatisticsHandler {
	return &UserStatisticsHandler{base{
		eventType: "UserCreated",
		name:      "UserStatisticsHandler",
		store:     store,
		logger:    logger,
	}}
}

func (h *UserStatisticsHandler) Handle(ctx context.Context, ev *model.OutboxEvent) error {
	h.logEvent(ev, "updating_user_statistics")

	_, err := h.store.Collection(StatisticsCollection).UpsertOne(ctx,
		bson.M{"_id": GlobalStatsKey},
		bson.M{
			"$inc": bson.M{"total_users": 1},
			"$set": bson.M{"last_updated": time.Now().UTC()},
		},
	)
	if err != nil {
		h.logError(ev, err)
		return err
	}

	h.logEvent(ev, "user_statistics_updated")
	return nil
}
