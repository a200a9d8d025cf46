package projection

// Hand-rolled projection-store fakes: the handlers only need the narrow
// Collection surface, so a scripted fake beats a full mongo emulation.

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/domain/model"
)

type capturedUpdate struct {
	filter bson.M
	update bson.M
	upsert bool
}

type fakeCollection struct {
	insertErr error
	inserted  []bson.M

	updateErr     error
	updateResults []mongodb.UpdateResult
	updates       []capturedUpdate
}

func (c *fakeCollection) InsertOne(_ context.Context, doc any) error {
	if c.insertErr != nil {
		return c.insertErr
	}
	c.inserted = append(c.inserted, doc.(bson.M))
	return nil
}

func (c *fakeCollection) UpdateOne(_ context.Context, filter, update any) (mongodb.UpdateResult, error) {
	return c.applyUpdate(filter, update, false)
}

func (c *fakeCollection) UpsertOne(_ context.Context, filter, update any) (mongodb.UpdateResult, error) {
	return c.applyUpdate(filter, update, true)
}

func (c *fakeCollection) applyUpdate(filter, update any, upsert bool) (mongodb.UpdateResult, error) {
	c.updates = append(c.updates, capturedUpdate{
		filter: filter.(bson.M),
		update: update.(bson.M),
		upsert: upsert,
	})
	if c.updateErr != nil {
		return mongodb.UpdateResult{}, c.updateErr
	}
	if len(c.updateResults) == 0 {
		return mongodb.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
	}
	res := c.updateResults[0]
	c.updateResults = c.updateResults[1:]
	return res, nil
}

type fakeStore struct {
	colls map[string]*fakeCollection
}

func newFakeStore() *fakeStore {
	return &fakeStore{colls: make(map[string]*fakeCollection)}
}

func (s *fakeStore) Collection(name string) mongodb.Collection {
	if _, ok := s.colls[name]; !ok {
		s.colls[name] = &fakeCollection{}
	}
	return s.colls[name]
}

func (s *fakeStore) coll(name string) *fakeCollection {
	s.Collection(name)
	return s.colls[name]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent(eventType string, payload map[string]any) *model.OutboxEvent {
	return &model.OutboxEvent{
		EventID:       uuid.New(),
		SequenceID:    1,
		AggregateID:   uuid.New(),
		AggregateType: "Test",
		EventType:     eventType,
		Payload:       payload,
		Status:        model.StatusPending,
		CreatedAt:     time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}
