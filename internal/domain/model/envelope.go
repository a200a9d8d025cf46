// Package model holds the wire and domain types of the outbox pipeline: the
// Debezium-style CDC envelope, the OutboxEvent lifted from its post-image,
// and the error taxonomy the dispatcher sorts records by.
//
// UUID fields are decoded as plain strings and parsed explicitly so that a
// malformed identifier surfaces as a ValidationError instead of a silent
// zero value.
package model

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Operation codes emitted by the CDC connector.
const (
	OpCreate   = "c"
	OpUpdate   = "u"
	OpDelete   = "d"
	OpSnapshot = "r"
)

// Envelope is the CDC wire record wrapping one outbox row change.
type Envelope struct {
	Op     string         `json:"op"`
	TsMs   int64          `json:"ts_ms"`
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after"`
	Source map[string]any `json:"source,omitempty"`
}

// envelopeWire mirrors Envelope with pointer fields so that absent keys are
// distinguishable from zero values at decode time.
type envelopeWire struct {
	Op     *string        `json:"op"`
	TsMs   *int64         `json:"ts_ms"`
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`
	Source map[string]any `json:"source"`
}

// DecodeEnvelope parses raw bytes from the log into an Envelope. It fails
// with a *DecodeError when the bytes are not well-formed JSON or any of the
// required keys (op, ts_ms, after) is missing.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var w envelopeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	switch {
	case w.Op == nil || *w.Op == "":
		return nil, &DecodeError{Reason: "missing required key op"}
	case w.TsMs == nil:
		return nil, &DecodeError{Reason: "missing required key ts_ms"}
	case w.After == nil:
		return nil, &DecodeError{Reason: "missing required key after"}
	}
	return &Envelope{
		Op:     *w.Op,
		TsMs:   *w.TsMs,
		Before: w.Before,
		After:  w.After,
		Source: w.Source,
	}, nil
}

// ShouldSkip reports whether the envelope carries an operation the processor
// drops before decode: deletes and snapshot reads are neither domain events
// nor errors.
func (e *Envelope) ShouldSkip() bool {
	return e.Op == OpDelete || e.Op == OpSnapshot
}

// ToEvent lifts the envelope's post-image into an OutboxEvent. Only creates
// and updates are convertible; every required event field must be present
// and well-typed in `after`.
func (e *Envelope) ToEvent() (*OutboxEvent, error) {
	if e.Op != OpCreate && e.Op != OpUpdate {
		return nil, &ValidationError{Field: "op", Reason: fmt.Sprintf("operation %q is not convertible", e.Op)}
	}

	eventID, err := uuidField(e.After, "event_id")
	if err != nil {
		return nil, err
	}
	aggregateID, err := uuidField(e.After, "aggregate_id")
	if err != nil {
		return nil, err
	}
	sequenceID, err := intField(e.After, "sequence_id")
	if err != nil {
		return nil, err
	}
	aggregateType, err := stringField(e.After, "aggregate_type")
	if err != nil {
		return nil, err
	}
	eventType, err := stringField(e.After, "event_type")
	if err != nil {
		return nil, err
	}
	payload, err := payloadField(e.After)
	if err != nil {
		return nil, err
	}
	status, err := stringField(e.After, "status")
	if err != nil {
		return nil, err
	}
	if !EventStatus(status).Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	createdAt, err := timeField(e.After, "created_at")
	if err != nil {
		return nil, err
	}

	ev := &OutboxEvent{
		EventID:       eventID,
		SequenceID:    sequenceID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		Status:        EventStatus(status),
		CreatedAt:     createdAt,
	}

	// Optional carry-through fields.
	if n, err := intField(e.After, "retry_count"); err == nil {
		if n < 0 {
			return nil, &ValidationError{Field: "retry_count", Reason: "must be non-negative"}
		}
		ev.RetryCount = int(n)
	}
	if s, ok := e.After["last_error"].(string); ok {
		ev.LastError = s
	}
	if _, ok := e.After["lock_id"]; ok {
		if id, err := uuidField(e.After, "lock_id"); err == nil {
			ev.LockID = &id
		}
	}
	if _, ok := e.After["published_at"]; ok {
		if t, err := timeField(e.After, "published_at"); err == nil {
			ev.PublishedAt = &t
		}
	}

	return ev, nil
}

// ── after-image field extraction ──────────────────────────────────────────

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", &ValidationError{Field: key, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &ValidationError{Field: key, Reason: "must be a non-empty string"}
	}
	return s, nil
}

func uuidField(m map[string]any, key string) (uuid.UUID, error) {
	s, err := stringField(m, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: key, Reason: fmt.Sprintf("not a UUID: %v", err)}
	}
	return id, nil
}

// intField accepts JSON numbers and numeric strings. Debezium renders
// bigint columns either way depending on connector configuration.
func intField(m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, &ValidationError{Field: key, Reason: "missing"}
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, &ValidationError{Field: key, Reason: "must be an integer"}
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, &ValidationError{Field: key, Reason: "must be an integer"}
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, &ValidationError{Field: key, Reason: "must be an integer"}
		}
		return i, nil
	default:
		return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// timeField accepts RFC3339 strings as well as epoch milli/microsecond
// numbers, the two renderings Debezium uses for timestamp columns.
func timeField(m map[string]any, key string) (time.Time, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Time{}, &ValidationError{Field: key, Reason: "missing"}
	}
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, &ValidationError{Field: key, Reason: fmt.Sprintf("unparseable timestamp %q", t)}
	case float64:
		return epochToTime(int64(t)), nil
	case int64:
		return epochToTime(t), nil
	default:
		return time.Time{}, &ValidationError{Field: key, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

// epochToTime guesses the unit from magnitude: values past the year ~5138
// in milliseconds are treated as microseconds.
func epochToTime(n int64) time.Time {
	const microThreshold = int64(1) << 47
	if n > microThreshold {
		return time.UnixMicro(n).UTC()
	}
	return time.UnixMilli(n).UTC()
}

// payloadField accepts an inline JSON object or a JSON-encoded string, the
// latter being how Debezium ships jsonb columns without a transform.
func payloadField(m map[string]any) (map[string]any, error) {
	v, ok := m["payload"]
	if !ok || v == nil {
		return nil, &ValidationError{Field: "payload", Reason: "missing"}
	}
	switch p := v.(type) {
	case map[string]any:
		return p, nil
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(p), &decoded); err != nil {
			return nil, &ValidationError{Field: "payload", Reason: "string payload is not a JSON object"}
		}
		return decoded, nil
	default:
		return nil, &ValidationError{Field: "payload", Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}
