package server

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overturetool/tempo-plotting-tool/pkg/dispatch"
)

// Dispatcher handles one inbound frame. *dispatch.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn dispatch.Conn, frame []byte) error
}

// ReadLoop reads frames and hands them to d one at a time, in arrival
// order. It blocks until the connection closes and returns the reason.
func (c *Connection) ReadLoop(d Dispatcher) string {
	if c.config.MaxMessageSize > 0 {
		c.ws.SetReadLimit(c.config.MaxMessageSize)
	}

	for {
		if c.config.IdleTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.config.IdleTimeout))
		}

		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			return c.readFailure(err)
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		c.touch(len(msg))

		if err := d.Dispatch(c.ctx, c, msg); err != nil {
			c.logger.Debug("message fault reported", "error", err)
		}
	}
}

// readFailure classifies a read error into a close reason.
func (c *Connection) readFailure(err error) string {
	if c.closed.Load() {
		return c.CloseReason()
	}

	var netErr interface{ Timeout() bool }
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return "client closed"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "idle timeout"
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure):
		c.logger.Error("read error", "error", err)
		return "read error"
	default:
		return "connection lost"
	}
}
