// Package kafka is the inbound edge of the processor: it pulls CDC records
// from the outbox topic, runs each one through the dispatch protocol and
// commits its offset only after every subscribed handler has been given the
// record. Offsets are the only persistent state the processor owns.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/activityhub/event-processor/config"
	"github.com/activityhub/event-processor/internal/domain/registry"
)

// State tracks the consumer through its lifecycle.
type State int32

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateDraining
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// MessageReader is the slice of *kafka.Reader the consumer depends on.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer owns the main processing loop. Single-threaded by design: each
// record is dispatched to completion before the next fetch, which is what
// preserves per-partition ordering.
type Consumer struct {
	cfg      config.Kafka
	registry *registry.Registry
	metrics  *Metrics
	logger   *slog.Logger

	// newReader and probe are swapped out by tests.
	newReader func() MessageReader
	probe     func(ctx context.Context) error
	reader    MessageReader

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}
}

func NewConsumer(cfg *config.Config, reg *registry.Registry, metrics *Metrics, logger *slog.Logger) *Consumer {
	c := &Consumer{
		cfg:      cfg.Kafka,
		registry: reg,
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}
	c.newReader = c.buildReader
	c.probe = c.dialProbe
	return c
}

// dialProbe checks broker reachability so that a dead log is fatal at
// startup instead of an endlessly retrying fetch.
func (c *Consumer) dialProbe(ctx context.Context) error {
	conn, err := kafkago.DialContext(ctx, "tcp", c.cfg.BootstrapServers[0])
	if err != nil {
		return fmt.Errorf("kafka dial %s: %w", c.cfg.BootstrapServers[0], err)
	}
	return conn.Close()
}

func (c *Consumer) buildReader() MessageReader {
	startOffset := kafkago.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		startOffset = kafkago.LastOffset
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     c.cfg.BootstrapServers,
		Topic:       c.cfg.Topic,
		GroupID:     c.cfg.GroupID,
		StartOffset: startOffset,
		// max_poll_records is a prefetch hint; the loop itself processes
		// one record at a time.
		QueueCapacity: c.cfg.MaxPollRecords,
		// CommitMessages is synchronous; offsets move only when the loop
		// says so.
		CommitInterval: 0,
	})
}

// State returns the consumer's current lifecycle state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Initialize probes the brokers and builds the reader. Failure here is
// fatal at startup.
func (c *Consumer) Initialize(ctx context.Context) error {
	if !c.transition(StateNew, StateReady) {
		return fmt.Errorf("kafka consumer: initialize from state %s", c.State())
	}

	if err := c.probe(ctx); err != nil {
		c.state.Store(int32(StateNew))
		c.logger.Error("kafka_consumer_init_failed", "error", err.Error())
		return err
	}

	c.reader = c.newReader()

	c.logger.Info("kafka_consumer_started",
		"topic", c.cfg.Topic,
		"group_id", c.cfg.GroupID,
		"bootstrap_servers", c.cfg.BootstrapServers,
	)
	return nil
}

// Run is the consumption loop. It returns nil on cooperative shutdown and
// the fetch error on a fatal log failure. ctx cancellation only interrupts
// the next fetch: the in-flight record is always dispatched and committed
// on a detached context, so a signal can never strand a half-processed
// record.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.transition(StateReady, StateRunning) {
		return fmt.Errorf("kafka consumer: run from state %s", c.State())
	}
	c.started.Store(true)
	c.metrics.SetRunning(true)
	defer func() {
		c.metrics.SetRunning(false)
		close(c.done)
	}()

	c.logger.Info("starting_event_consumption")

	workCtx := context.WithoutCancel(ctx)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.transition(StateRunning, StateDraining)
				c.logger.Info("consumption_stopped_by_signal")
				return nil
			}
			c.state.Store(int32(StateFailed))
			c.logger.Error("consumption_error", "error", err.Error())
			return fmt.Errorf("kafka fetch: %w", err)
		}

		c.processMessage(workCtx, msg)

		if err := c.reader.CommitMessages(workCtx, msg); err != nil {
			c.state.Store(int32(StateFailed))
			c.logger.Error("offset_commit_failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err.Error(),
			)
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Shutdown waits for the loop to settle its in-flight record, closes the
// reader and emits the run summary. Safe to call whether or not the loop
// ever started.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.logger.Info("kafka_consumer_shutting_down")

	if c.started.Load() {
		select {
		case <-c.done:
		case <-ctx.Done():
			c.logger.Warn("kafka_consumer_drain_timeout")
		}
	}

	if c.reader != nil {
		if err := c.reader.Close(); err != nil {
			c.logger.Error("kafka_reader_close_failed", "error", err.Error())
		}
	}

	c.state.Store(int32(StateStopped))

	snap := c.metrics.Snapshot()
	c.logger.Info("kafka_consumer_stopped",
		"total_processed", snap.TotalProcessed,
		"total_errors", snap.TotalErrors,
		"uptime_seconds", snap.UptimeSeconds,
	)
	return nil
}
