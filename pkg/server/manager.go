package server

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

// ConnectionManager tracks every open connection. It handles accept,
// lookup, unicast and broadcast sends, and lifecycle callbacks.
type ConnectionManager struct {
	// Connections map protected by RWMutex
	conns map[string]*Connection
	mu    sync.RWMutex

	config     *Config
	dispatcher Dispatcher

	// ctx is the parent of every connection context.
	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
	closed atomic.Bool

	// Metrics
	totalAccepted atomic.Uint64
	totalClosed   atomic.Uint64
	peak          int
	metrics       *Metrics

	// Callbacks
	onAccept func(*Connection)
	onClose  func(c *Connection, reason string)

	logger *slog.Logger
}

// NewConnectionManager creates a manager that feeds every accepted
// connection's frames to d.
func NewConnectionManager(config *Config, d Dispatcher, logger *slog.Logger) *ConnectionManager {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ConnectionManager{
		conns:      make(map[string]*Connection),
		config:     config,
		dispatcher: d,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.With("component", "connection_manager"),
	}
}

// SetMetrics attaches prometheus collectors. Call before accepting.
func (cm *ConnectionManager) SetMetrics(m *Metrics) {
	cm.metrics = m
}

// SetOnAccept sets the callback run after a connection is registered.
func (cm *ConnectionManager) SetOnAccept(fn func(*Connection)) {
	cm.onAccept = fn
}

// SetOnClose sets the callback run after a connection is deregistered.
func (cm *ConnectionManager) SetOnClose(fn func(c *Connection, reason string)) {
	cm.onClose = fn
}

// Accept registers ws and starts its read loop. The connection has no idle
// timeout unless Config.IdleTimeout is positive.
func (cm *ConnectionManager) Accept(ws *websocket.Conn, remoteAddr string) (*Connection, error) {
	cm.mu.Lock()
	if cm.closed.Load() {
		cm.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if cm.config.MaxConnections > 0 && len(cm.conns) >= cm.config.MaxConnections {
		cm.mu.Unlock()
		if cm.metrics != nil {
			cm.metrics.rejectedTotal.Inc()
		}
		return nil, ErrMaxConnectionsReached
	}

	c := newConnection(cm.ctx, ws, remoteAddr, cm.config, cm.logger)
	c.metrics = cm.metrics
	cm.conns[c.id] = c
	if len(cm.conns) > cm.peak {
		cm.peak = len(cm.conns)
	}
	cm.totalAccepted.Add(1)
	cm.loops.Add(1)
	cm.mu.Unlock()

	if cm.metrics != nil {
		cm.metrics.connectionsTotal.Inc()
		cm.metrics.activeConnections.Inc()
	}

	cm.logger.Info("connection accepted",
		"conn_id", c.id,
		"remote_addr", remoteAddr,
		"active_connections", cm.Count())

	if cm.onAccept != nil {
		cm.onAccept(c)
	}

	go cm.serve(c)
	return c, nil
}

func (cm *ConnectionManager) serve(c *Connection) {
	defer cm.loops.Done()
	reason := c.ReadLoop(cm.dispatcher)
	_ = cm.Close(c.id, reason)
}

// Close closes and deregisters the connection with the given ID.
func (cm *ConnectionManager) Close(id, reason string) error {
	cm.mu.Lock()
	c, ok := cm.conns[id]
	if ok {
		delete(cm.conns, id)
	}
	cm.mu.Unlock()

	if !ok {
		return ErrConnectionNotFound
	}
	cm.finish(c, reason)
	return nil
}

func (cm *ConnectionManager) finish(c *Connection, reason string) {
	c.Close(reason)
	cm.totalClosed.Add(1)
	if cm.metrics != nil {
		cm.metrics.activeConnections.Dec()
		cm.metrics.closedTotal.WithLabelValues(reason).Inc()
	}
	if cm.onClose != nil {
		cm.onClose(c, reason)
	}
	cm.logger.Info("connection closed",
		"conn_id", c.id,
		"reason", reason,
		"active_connections", cm.Count())
}

// Get returns the connection with the given ID, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conns[id]
}

// Send delivers env to one connection.
func (cm *ConnectionManager) Send(ctx context.Context, id string, env protocol.Envelope) error {
	c := cm.Get(id)
	if c == nil {
		return ErrConnectionNotFound
	}
	return c.Send(ctx, env)
}

// Snapshot returns the open connections ordered by ID.
func (cm *ConnectionManager) Snapshot() []*Connection {
	cm.mu.RLock()
	out := make([]*Connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		out = append(out, c)
	}
	cm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// ForEach calls fn for every open connection until fn returns false.
// It iterates over a snapshot, so fn may close connections.
func (cm *ConnectionManager) ForEach(fn func(*Connection) bool) {
	for _, c := range cm.Snapshot() {
		if !fn(c) {
			return
		}
	}
}

// Broadcast sends env to every open connection. Failures do not stop the
// broadcast; they are returned joined.
func (cm *ConnectionManager) Broadcast(ctx context.Context, env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return NewConnectionError("", "encode", err)
	}

	var errs []error
	cm.ForEach(func(c *Connection) bool {
		if err := c.SendRaw(ctx, frame); err != nil {
			errs = append(errs, NewConnectionError(c.id, "broadcast", err))
		}
		return true
	})
	return errors.Join(errs...)
}

// Count returns the number of open connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// Stats returns aggregated connection statistics.
func (cm *ConnectionManager) Stats() ManagerStats {
	cm.mu.RLock()
	active := len(cm.conns)
	peak := cm.peak
	cm.mu.RUnlock()

	return ManagerStats{
		Active:        active,
		TotalAccepted: cm.totalAccepted.Load(),
		TotalClosed:   cm.totalClosed.Load(),
		Peak:          peak,
	}
}

// ManagerStats contains aggregated connection manager statistics.
type ManagerStats struct {
	Active        int
	TotalAccepted uint64
	TotalClosed   uint64
	Peak          int
}

// Shutdown closes every connection and waits for their read loops to exit
// or for ctx to be done.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.mu.Lock()
	if cm.closed.Swap(true) {
		cm.mu.Unlock()
		return nil
	}
	conns := make([]*Connection, 0, len(cm.conns))
	for _, c := range cm.conns {
		conns = append(conns, c)
	}
	cm.conns = make(map[string]*Connection)
	cm.mu.Unlock()

	cm.cancel()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			cm.finish(c, "server shutdown")
		}(c)
	}
	wg.Wait()

	loopsDone := make(chan struct{})
	go func() {
		cm.loops.Wait()
		close(loopsDone)
	}()

	select {
	case <-loopsDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	cm.logger.Info("connection manager shutdown",
		"closed_connections", len(conns))
	return nil
}
