package model

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is the processing status stamped on the outbox row by the
// source writer. The processor carries it through untouched.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessing EventStatus = "processing"
	StatusProcessed  EventStatus = "processed"
	StatusFailed     EventStatus = "failed"
)

func (s EventStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// OutboxEvent is one row of the source's event_outbox table, lifted out of a
// CDC envelope's post-image.
type OutboxEvent struct {
	EventID       uuid.UUID
	SequenceID    int64
	AggregateID   uuid.UUID
	AggregateType string
	EventType     string
	Payload       map[string]any
	Status        EventStatus
	RetryCount    int
	LastError     string
	LockID        *uuid.UUID
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// ProcessingResult summarizes the dispatch of a single record.
type ProcessingResult struct {
	Success          bool
	EventID          uuid.UUID
	EventType        string
	HandlerName      string
	Error            string
	ProcessingTimeMS float64
}
