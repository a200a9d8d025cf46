// Package mongodb owns the single pooled client to the projection store and
// exposes narrow per-collection handles to the projection handlers. Nothing
// outside this package touches the driver directly.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/activityhub/event-processor/config"
	"github.com/activityhub/event-processor/internal/domain/model"
)

// Store is the projection-store contract the handlers depend on.
type Store interface {
	Collection(name string) Collection
}

// Gateway is the process-wide projection store client. Exactly one instance
// exists, constructed by the lifecycle and closed in teardown.
type Gateway struct {
	cfg    config.Mongo
	logger *slog.Logger

	mu      sync.Mutex
	client  *mongo.Client
	breaker *gobreaker.CircuitBreaker
}

func NewGateway(cfg *config.Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg.Mongo,
		logger: logger,
		// The breaker fails store commands fast while MongoDB is down
		// instead of letting every handler wait out driver timeouts.
		// Duplicate-key errors are business outcomes, not store health.
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "mongodb",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: func(err error) bool {
				return err == nil || mongo.IsDuplicateKeyError(err)
			},
		}),
	}
}

// Connect establishes the pooled client and probes reachability with an
// admin ping. Failure here is fatal at startup.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return nil
	}

	opts := options.Client().
		ApplyURI(g.cfg.URI).
		SetConnectTimeout(time.Duration(g.cfg.ConnectTimeoutMS) * time.Millisecond).
		SetServerSelectionTimeout(time.Duration(g.cfg.ServerSelectionTimeoutMS) * time.Millisecond)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		g.logger.Error("mongodb_connection_failed", "error", err.Error())
		return fmt.Errorf("mongodb ping: %w", err)
	}

	g.client = client
	g.logger.Info("mongodb_connected",
		"uri", config.RedactURI(g.cfg.URI),
		"database", g.cfg.Database,
	)
	return nil
}

// Disconnect closes the client. Idempotent; safe after a failed Connect.
func (g *Gateway) Disconnect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil
	}
	err := g.client.Disconnect(ctx)
	g.client = nil
	if err != nil {
		return fmt.Errorf("mongodb disconnect: %w", err)
	}
	g.logger.Info("mongodb_disconnected")
	return nil
}

// Ping probes the store for readiness checks.
func (g *Gateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	client := g.client
	g.mu.Unlock()

	if client == nil {
		return fmt.Errorf("mongodb: not connected")
	}
	return client.Ping(ctx, readpref.Primary())
}

// Collection returns a handle bound to the configured database. No
// connection state or credentials leak through the handle.
func (g *Gateway) Collection(name string) Collection {
	g.mu.Lock()
	defer g.mu.Unlock()

	return &collection{
		coll:    g.client.Database(g.cfg.Database).Collection(name),
		breaker: g.breaker,
	}
}

// ── collection handle ─────────────────────────────────────────────────────

// UpdateResult carries the match/modify counts an update produced.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
}

// Collection is the narrow write surface the projection handlers use:
// inserts, targeted updates and upserts. Swapping the store means
// preserving exactly these semantics.
type Collection interface {
	InsertOne(ctx context.Context, doc any) error
	UpdateOne(ctx context.Context, filter, update any) (UpdateResult, error)
	UpsertOne(ctx context.Context, filter, update any) (UpdateResult, error)
}

type collection struct {
	coll    *mongo.Collection
	breaker *gobreaker.CircuitBreaker
}

func (c *collection) InsertOne(ctx context.Context, doc any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return c.coll.InsertOne(ctx, doc)
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", c.coll.Name(), model.ErrDuplicateKey)
	}
	return err
}

func (c *collection) UpdateOne(ctx context.Context, filter, update any) (UpdateResult, error) {
	return c.update(ctx, filter, update, false)
}

func (c *collection) UpsertOne(ctx context.Context, filter, update any) (UpdateResult, error) {
	return c.update(ctx, filter, update, true)
}

func (c *collection) update(ctx context.Context, filter, update any, upsert bool) (UpdateResult, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(upsert))
	})
	if err != nil {
		return UpdateResult{}, err
	}
	ur := res.(*mongo.UpdateResult)
	out := UpdateResult{
		MatchedCount:  ur.MatchedCount,
		ModifiedCount: ur.ModifiedCount,
	}
	if ur.UpsertedID != nil {
		out.UpsertedCount = ur.UpsertedCount
	}
	return out, nil
}
