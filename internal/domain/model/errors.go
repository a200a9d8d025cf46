package model

import (
	"errors"
	"fmt"
)

// ErrDuplicateKey marks an insert that collided with an existing document.
// Create handlers treat it as a replayed delivery, not a failure.
var ErrDuplicateKey = errors.New("duplicate key")

// DecodeError reports a wire record that is not a well-formed CDC envelope.
// Such records are poison: the consumer logs them, counts them and commits
// past them.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode envelope: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports an envelope whose `after` image cannot be lifted
// into an OutboxEvent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid outbox event: field %q: %s", e.Field, e.Reason)
}

// NotFoundError reports an update that targeted a projection document which
// does not exist. The dispatcher surfaces it as a handler failure without
// retrying the record.
type NotFoundError struct {
	Collection string
	Key        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: document %q not found", e.Collection, e.Key)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
