package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

func TestNewConnectionManagerDefaults(t *testing.T) {
	cm := NewConnectionManager(nil, testRouter(), nil)
	defer cm.Shutdown(context.Background())

	if cm.config.EndpointPath != DefaultEndpointPath {
		t.Errorf("EndpointPath = %q, want default", cm.config.EndpointPath)
	}
	if cm.config.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want 0", cm.config.IdleTimeout)
	}
	if cm.Count() != 0 {
		t.Errorf("Count() = %d, want 0", cm.Count())
	}
}

func TestConnectionManagerGetNotFound(t *testing.T) {
	cm := NewConnectionManager(nil, testRouter(), testLogger())
	defer cm.Shutdown(context.Background())

	if cm.Get("nonexistent") != nil {
		t.Error("Get should return nil for a nonexistent connection")
	}
	if err := cm.Close("nonexistent", "test"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Close() error = %v, want ErrConnectionNotFound", err)
	}
	err := cm.Send(context.Background(), "nonexistent", protocol.OK("X"))
	if !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("Send() error = %v, want ErrConnectionNotFound", err)
	}
}

func TestConnectionManagerUnicast(t *testing.T) {
	s, url := newTestServer(t, nil)
	a := dialWS(t, url, nil)
	b := dialWS(t, url, nil)
	waitFor(t, "two connections", func() bool { return s.Connections().Count() == 2 })

	target := s.Connections().Snapshot()[0]
	if err := s.Connections().Send(context.Background(), target.ID(), protocol.OK("Ping")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// exactly one client receives it
	got := 0
	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		if _, _, err := c.ReadMessage(); err == nil {
			got++
		}
	}
	if got != 1 {
		t.Errorf("unicast reached %d clients, want 1", got)
	}
}

func TestConnectionManagerBroadcast(t *testing.T) {
	s, url := newTestServer(t, nil)
	clients := []*websocket.Conn{dialWS(t, url, nil), dialWS(t, url, nil), dialWS(t, url, nil)}
	waitFor(t, "three connections", func() bool { return s.Connections().Count() == 3 })

	if err := s.Connections().Broadcast(context.Background(), protocol.OK("Tick")); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	for i, c := range clients {
		if env := readEnvelope(t, c); env.Type != "Tick" {
			t.Errorf("client %d got %q, want Tick", i, env.Type)
		}
	}
}

func TestConnectionManagerBroadcastSkipsClosed(t *testing.T) {
	s, url := newTestServer(t, nil)
	live := dialWS(t, url, nil)
	gone := dialWS(t, url, nil)
	waitFor(t, "two connections", func() bool { return s.Connections().Count() == 2 })

	_ = gone.Close()
	waitFor(t, "closed connection to deregister", func() bool { return s.Connections().Count() == 1 })

	if err := s.Connections().Broadcast(context.Background(), protocol.OK("Tick")); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}
	if env := readEnvelope(t, live); env.Type != "Tick" {
		t.Errorf("live client got %q, want Tick", env.Type)
	}
}

func TestConnectionManagerConcurrentBroadcast(t *testing.T) {
	s, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)
	waitFor(t, "connection", func() bool { return s.Connections().Count() == 1 })

	const senders, each = 4, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_ = s.Connections().Broadcast(context.Background(), protocol.OK("Tick"))
			}
		}()
	}
	wg.Wait()

	// every frame arrives intact
	for i := 0; i < senders*each; i++ {
		if env := readEnvelope(t, conn); env.Type != "Tick" {
			t.Fatalf("frame %d type = %q", i, env.Type)
		}
	}
}

func TestConnectionManagerCallbacksAndStats(t *testing.T) {
	var mu sync.Mutex
	var accepted, closed []string

	s := New(nil, testRouter(), WithLogger(testLogger()))
	s.Connections().SetOnAccept(func(c *Connection) {
		mu.Lock()
		accepted = append(accepted, c.ID())
		mu.Unlock()
	})
	s.Connections().SetOnClose(func(c *Connection, _ string) {
		mu.Lock()
		closed = append(closed, c.ID())
		mu.Unlock()
	})
	url := startServer(t, s)

	dialWS(t, url, nil)
	dialWS(t, url, nil)
	waitFor(t, "two connections", func() bool { return s.Connections().Count() == 2 })

	first := s.Connections().Snapshot()[0]
	if err := s.Connections().Close(first.ID(), "kicked"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if first.CloseReason() != "kicked" || !first.IsClosed() {
		t.Errorf("closed connection reason = %q", first.CloseReason())
	}

	stats := s.Connections().Stats()
	if stats.Active != 1 || stats.TotalAccepted != 2 || stats.TotalClosed != 1 || stats.Peak != 2 {
		t.Errorf("Stats() = %+v", stats)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(accepted) != 2 || len(closed) != 1 || closed[0] != first.ID() {
		t.Errorf("accepted = %v closed = %v", accepted, closed)
	}
}

func TestConnectionManagerShutdownRejectsAccept(t *testing.T) {
	cm := NewConnectionManager(nil, testRouter(), testLogger())
	if err := cm.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := cm.Accept(nil, "127.0.0.1:1"); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Accept() after Shutdown error = %v, want ErrManagerClosed", err)
	}
	// second shutdown is a no-op
	if err := cm.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestConnectionManagerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, url := newTestServer(t, nil, WithRegistry(reg))
	conn := dialWS(t, url, nil)
	waitFor(t, "connection", func() bool { return s.Connections().Count() == 1 })
	_ = conn.Close()
	waitFor(t, "close", func() bool { return s.Connections().Count() == 0 })

	m := s.Connections().metrics
	if got := gaugeValue(t, m.activeConnections); got != 0 {
		t.Errorf("active_connections = %v, want 0", got)
	}
	if got := counterValue(t, m.connectionsTotal); got != 1 {
		t.Errorf("connections_total = %v, want 1", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}
