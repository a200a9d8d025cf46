package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelopeJSON(t *testing.T, after map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"op":     "c",
		"ts_ms":  1700000000000,
		"after":  after,
		"source": map[string]any{"connector": "postgresql", "table": "event_outbox"},
	})
	require.NoError(t, err)
	return raw
}

func validAfter() map[string]any {
	return map[string]any{
		"event_id":       "7b7377a4-3f19-4cf4-9e1c-3f1a43f0d2aa",
		"sequence_id":    42,
		"aggregate_id":   "9d5e61dc-59d8-4a52-9a2a-46b24f0d6c11",
		"aggregate_type": "User",
		"event_type":     "UserCreated",
		"payload":        map[string]any{"email": "a@x", "username": "a"},
		"status":         "pending",
		"retry_count":    0,
		"created_at":     "2024-01-01T12:00:00Z",
	}
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope(validEnvelopeJSON(t, validAfter()))
	require.NoError(t, err)
	assert.Equal(t, "c", env.Op)
	assert.Equal(t, int64(1700000000000), env.TsMs)
	assert.Equal(t, "UserCreated", env.After["event_type"])
	assert.Equal(t, "postgresql", env.Source["connector"])
}

func TestDecodeEnvelopeMalformedJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"op": "c", "ts_ms":`))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecodeEnvelopeMissingRequiredKeys(t *testing.T) {
	cases := map[string]string{
		"missing op":    `{"ts_ms": 1, "after": {}}`,
		"missing ts_ms": `{"op": "c", "after": {}}`,
		"missing after": `{"op": "c", "ts_ms": 1}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(raw))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
		})
	}
}

func TestShouldSkip(t *testing.T) {
	for op, skip := range map[string]bool{"c": false, "u": false, "d": true, "r": true} {
		env := &Envelope{Op: op}
		assert.Equal(t, skip, env.ShouldSkip(), "op=%s", op)
	}
}

func TestToEvent(t *testing.T) {
	env, err := DecodeEnvelope(validEnvelopeJSON(t, validAfter()))
	require.NoError(t, err)

	ev, err := env.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse("7b7377a4-3f19-4cf4-9e1c-3f1a43f0d2aa"), ev.EventID)
	assert.Equal(t, uuid.MustParse("9d5e61dc-59d8-4a52-9a2a-46b24f0d6c11"), ev.AggregateID)
	assert.Equal(t, int64(42), ev.SequenceID)
	assert.Equal(t, "User", ev.AggregateType)
	assert.Equal(t, "UserCreated", ev.EventType)
	assert.Equal(t, StatusPending, ev.Status)
	assert.Equal(t, "a@x", ev.Payload["email"])
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), ev.CreatedAt.UTC())
}

func TestToEventRejectsNonConvertibleOps(t *testing.T) {
	for _, op := range []string{"d", "r", "x"} {
		env := &Envelope{Op: op, After: validAfter()}
		_, err := env.ToEvent()
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "op=%s", op)
		assert.Equal(t, "op", ve.Field)
	}
}

func TestToEventMissingRequiredField(t *testing.T) {
	required := []string{
		"event_id", "sequence_id", "aggregate_id",
		"aggregate_type", "event_type", "payload", "status", "created_at",
	}
	for _, field := range required {
		t.Run(field, func(t *testing.T) {
			after := validAfter()
			delete(after, field)
			env := &Envelope{Op: "c", After: after}
			_, err := env.ToEvent()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, field, ve.Field)
		})
	}
}

func TestToEventBadUUID(t *testing.T) {
	after := validAfter()
	after["aggregate_id"] = "not-a-uuid"
	env := &Envelope{Op: "u", After: after}
	_, err := env.ToEvent()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "aggregate_id", ve.Field)
}

func TestToEventUnknownStatus(t *testing.T) {
	after := validAfter()
	after["status"] = "weird"
	env := &Envelope{Op: "c", After: after}
	_, err := env.ToEvent()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
}

func TestToEventTolerantWireForms(t *testing.T) {
	after := validAfter()
	// Debezium renders bigints as numbers or strings and timestamps as
	// strings or epoch numbers depending on connector config.
	after["sequence_id"] = "1337"
	after["created_at"] = float64(1700000000000) // epoch millis
	after["payload"] = `{"email":"b@y"}`         // jsonb shipped as string

	env := &Envelope{Op: "c", After: after}
	ev, err := env.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, int64(1337), ev.SequenceID)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.CreatedAt)
	assert.Equal(t, "b@y", ev.Payload["email"])
}

func TestToEventEpochMicros(t *testing.T) {
	after := validAfter()
	after["created_at"] = float64(1700000000000000) // epoch micros
	env := &Envelope{Op: "c", After: after}
	ev, err := env.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, time.UnixMicro(1700000000000000).UTC(), ev.CreatedAt)
}

func TestToEventOptionalCarryThrough(t *testing.T) {
	lockID := uuid.NewString()
	after := validAfter()
	after["retry_count"] = 2
	after["last_error"] = "previous failure"
	after["lock_id"] = lockID
	after["published_at"] = "2024-01-02T08:30:00Z"

	env := &Envelope{Op: "u", After: after}
	ev, err := env.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, 2, ev.RetryCount)
	assert.Equal(t, "previous failure", ev.LastError)
	require.NotNil(t, ev.LockID)
	assert.Equal(t, lockID, ev.LockID.String())
	require.NotNil(t, ev.PublishedAt)
}

func TestErrorTaxonomy(t *testing.T) {
	nf := &NotFoundError{Collection: "users", Key: "u999"}
	assert.True(t, IsNotFound(fmt.Errorf("handler: %w", nf)))
	assert.False(t, IsNotFound(errors.New("other")))
	assert.True(t, errors.Is(fmt.Errorf("users: %w", ErrDuplicateKey), ErrDuplicateKey))
}
