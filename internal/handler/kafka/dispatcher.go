package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/activityhub/event-processor/internal/domain/model"
)

// processMessage runs one record through the dispatch protocol: decode,
// skip-check, handler lookup, per-handler iteration, accounting. It never
// fails the record — every outcome ends with the caller committing the
// offset, which is what keeps a poison record from stalling the partition.
func (c *Consumer) processMessage(ctx context.Context, msg kafkago.Message) *model.ProcessingResult {
	start := time.Now()

	env, err := model.DecodeEnvelope(msg.Value)
	if err != nil {
		c.metrics.RecordError()
		c.logger.Error("message_decode_failed",
			"error", err.Error(),
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return nil
	}

	if env.ShouldSkip() {
		c.logger.Debug("message_skipped",
			"op", env.Op,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return nil
	}

	ev, err := env.ToEvent()
	if err != nil {
		c.metrics.RecordError()
		c.logger.Error("message_processing_failed",
			"error", err.Error(),
			"error_kind", errorKind(err),
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return nil
	}

	handlers := c.registry.GetHandlers(ev.EventType)
	if len(handlers) == 0 {
		c.logger.Warn("no_handlers_found",
			"event_type", ev.EventType,
			"event_id", ev.EventID.String(),
		)
		return nil
	}

	c.logger.Info("processing_event",
		"event_type", ev.EventType,
		"event_id", ev.EventID.String(),
		"handler_count", len(handlers),
	)

	for _, h := range handlers {
		if !h.Validate(ctx, ev) {
			c.logger.Warn("event_validation_failed",
				"handler", h.Name(),
				"event_type", ev.EventType,
				"event_id", ev.EventID.String(),
			)
			continue
		}

		if err := h.Handle(ctx, ev); err != nil {
			// Sibling handlers still run; handlers are idempotent and the
			// offset advances regardless.
			c.metrics.RecordError()
			c.logger.Error("handler_failed",
				"handler", h.Name(),
				"event_type", ev.EventType,
				"event_id", ev.EventID.String(),
				"error", err.Error(),
				"error_kind", errorKind(err),
			)
		}
	}

	elapsed := time.Since(start)
	c.metrics.RecordProcessed(elapsed)

	c.logger.Info("event_processed",
		"event_type", ev.EventType,
		"event_id", ev.EventID.String(),
		"processing_time_ms", float64(elapsed.Microseconds())/1000.0,
		"total_processed", c.metrics.Snapshot().TotalProcessed,
	)

	return &model.ProcessingResult{
		Success:          true,
		EventID:          ev.EventID,
		EventType:        ev.EventType,
		HandlerName:      "multiple",
		ProcessingTimeMS: float64(elapsed.Microseconds()) / 1000.0,
	}
}

func errorKind(err error) string {
	var de *model.DecodeError
	var ve *model.ValidationError
	switch {
	case model.IsNotFound(err):
		return "not_found"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, model.ErrDuplicateKey):
		return "duplicate_key"
	}
	return "handler"
}
