// Package services provides external integrations for the campaign engine
package services

import (
	"context"
	"errors"
	"fmt"
)

// OutboundMessage is a single delivery handed to the transport
type OutboundMessage struct {
	Target   string
	Body     string
	MediaURL *string
}

// Transport delivers campaign messages to recipients. Send blocks until the
// delivery attempt settles; a plain error marks one target failed, a
// FatalError aborts the whole run.
type Transport interface {
	Send(ctx context.Context, msg OutboundMessage) error
	Ready(ctx context.Context) error
}

// FatalError wraps a transport error that poisons the entire sending session.
// The dispatch loop stops and fails the campaign instead of skipping the
// current target.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal transport error: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError marks err as session-fatal
func NewFatalError(err error) *FatalError {
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
