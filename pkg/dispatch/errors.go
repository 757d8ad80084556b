package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("dispatch: handler is nil")

	// ErrEmptyMessageType is returned when a handler reports an empty tag.
	ErrEmptyMessageType = errors.New("dispatch: handler message type is empty")

	// ErrPayloadType is returned when Handle receives a payload it did not decode.
	ErrPayloadType = errors.New("dispatch: unexpected payload type")
)

// HandlerError describes a fault caught by the barrier.
type HandlerError struct {
	// Type is the message type being handled, empty for frames that could
	// not be classified.
	Type string

	ConnID string

	// Err is the returned error. Nil when the handler panicked.
	Err error

	// Panic is the recovered value, nil when the handler returned an error.
	Panic any
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	typ := e.Type
	if typ == "" {
		typ = "<unknown>"
	}
	if e.Panic != nil {
		return fmt.Sprintf("dispatch: %s handler panicked on %s: %v", typ, e.ConnID, e.Panic)
	}
	return fmt.Sprintf("dispatch: %s handler failed on %s: %v", typ, e.ConnID, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Message is the text sent to the client in the Error envelope.
func (e *HandlerError) Message() string {
	if e.Panic != nil {
		return fmt.Sprintf("internal error: %v", e.Panic)
	}
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}
