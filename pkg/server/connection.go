package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overturetool/tempo-plotting-tool/internal/ids"
	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

// Connection is one client's long-lived subscription channel.
// Send is safe for concurrent use; reads happen on a single goroutine.
type Connection struct {
	id         string
	remoteAddr string
	createdAt  time.Time
	lastActive atomic.Int64 // unix nanos

	ws     *websocket.Conn
	mu     sync.Mutex // Protects ws writes
	closed atomic.Bool
	done   chan struct{}

	// ctx is canceled on close so in-flight handlers stop early.
	ctx    context.Context
	cancel context.CancelFunc

	closeReason atomic.Value // string

	config  *Config
	logger  *slog.Logger
	metrics *Metrics

	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64
	bytesIn     atomic.Uint64
	bytesOut    atomic.Uint64
}

func newConnection(parent context.Context, ws *websocket.Conn, remoteAddr string, config *Config, logger *slog.Logger) *Connection {
	now := time.Now()
	id := ids.New()
	ctx, cancel := context.WithCancel(parent)

	c := &Connection{
		id:         id,
		remoteAddr: remoteAddr,
		createdAt:  now,
		ws:         ws,
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		config:     config,
		logger:     logger.With("conn_id", id),
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

// ID returns the unique connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the client address seen at upgrade time.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Context returns a context canceled when the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Send encodes env and writes it as one text frame.
func (c *Connection) Send(ctx context.Context, env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return NewConnectionError(c.id, "encode", err)
	}
	return c.SendRaw(ctx, frame)
}

// SendRaw writes an already encoded frame.
func (c *Connection) SendRaw(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return NewConnectionError(c.id, "send", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)

	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Warn("write error", "error", err)
		if c.metrics != nil {
			c.metrics.sendErrors.Inc()
		}
		c.closeInternal("write error")
		return NewConnectionError(c.id, "send", err)
	}

	c.messagesOut.Add(1)
	c.bytesOut.Add(uint64(len(frame)))
	if c.metrics != nil {
		c.metrics.messagesSent.Inc()
	}
	return nil
}

// Close closes the connection. The first reason given is kept.
func (c *Connection) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeInternal(reason)
}

// closeInternal must be called with mu held.
func (c *Connection) closeInternal(reason string) {
	if c.closed.Swap(true) {
		return
	}
	c.closeReason.Store(reason)
	c.cancel()
	close(c.done)

	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second),
	)
	_ = c.ws.Close()
}

// IsClosed reports whether the connection was closed.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Done returns a channel closed when the connection closes.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// CloseReason returns the reason passed to the first Close.
func (c *Connection) CloseReason() string {
	reason, _ := c.closeReason.Load().(string)
	return reason
}

func (c *Connection) touch(n int) {
	c.lastActive.Store(time.Now().UnixNano())
	c.messagesIn.Add(1)
	c.bytesIn.Add(uint64(n))
	if c.metrics != nil {
		c.metrics.messagesReceived.Inc()
	}
}

// Stats returns connection statistics.
func (c *Connection) Stats() ConnectionStats {
	return ConnectionStats{
		ID:          c.id,
		RemoteAddr:  c.remoteAddr,
		CreatedAt:   c.createdAt,
		LastActive:  time.Unix(0, c.lastActive.Load()),
		MessagesIn:  c.messagesIn.Load(),
		MessagesOut: c.messagesOut.Load(),
		BytesIn:     c.bytesIn.Load(),
		BytesOut:    c.bytesOut.Load(),
	}
}

// ConnectionStats contains connection statistics.
type ConnectionStats struct {
	ID          string
	RemoteAddr  string
	CreatedAt   time.Time
	LastActive  time.Time
	MessagesIn  uint64
	MessagesOut uint64
	BytesIn     uint64
	BytesOut    uint64
}
