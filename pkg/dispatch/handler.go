package dispatch

import (
	"context"
	"fmt"

	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

// Conn is the connection a message arrived on. Replies go back through it.
type Conn interface {
	ID() string
	Send(ctx context.Context, env protocol.Envelope) error
}

// Handler processes one message type.
type Handler interface {
	// MessageType is the tag this handler is registered under.
	MessageType() string

	// Decode turns the full raw frame into the handler's payload.
	Decode(frame []byte) (any, error)

	// Handle processes a decoded payload. Replies are sent through conn.
	Handle(ctx context.Context, payload any, conn Conn) error
}

// TypedFunc handles a decoded request of type T.
type TypedFunc[T any] func(ctx context.Context, req *T, conn Conn) error

type typedHandler[T any] struct {
	msgType string
	fn      TypedFunc[T]
}

// NewHandler builds a Handler that decodes the "data" member into a *T.
// A frame without data yields a zero T.
func NewHandler[T any](msgType string, fn TypedFunc[T]) Handler {
	return &typedHandler[T]{msgType: msgType, fn: fn}
}

func (h *typedHandler[T]) MessageType() string {
	return h.msgType
}

func (h *typedHandler[T]) Decode(frame []byte) (any, error) {
	req := new(T)
	if err := protocol.DecodeData(frame, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload any, conn Conn) error {
	req, ok := payload.(*T)
	if !ok {
		return fmt.Errorf("%w: %T for %s", ErrPayloadType, payload, h.msgType)
	}
	return h.fn(ctx, req, conn)
}

// Reply marshals data and sends it under msgType on conn.
func Reply(ctx context.Context, conn Conn, msgType string, data any) error {
	env, err := protocol.NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return conn.Send(ctx, env)
}
