package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

func TestServerRoundTrip(t *testing.T) {
	_, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)

	writeFrame(t, conn, `{"type":"Echo","data":{"text":"hello"}}`)
	env := readEnvelope(t, conn)
	if env.Type != "Echo" || string(env.Data) != `"hello"` {
		t.Errorf("reply = %s %s, want Echo \"hello\"", env.Type, env.Data)
	}
}

func TestServerUnregisteredTypeGetsNoReply(t *testing.T) {
	_, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)

	writeFrame(t, conn, `{"type":"Nobody","data":{}}`)
	writeFrame(t, conn, `{"type":"Echo","data":{"text":"after"}}`)

	// The first frame read must answer the second message.
	env := readEnvelope(t, conn)
	if env.Type != "Echo" || string(env.Data) != `"after"` {
		t.Errorf("reply = %s %s, want the Echo reply only", env.Type, env.Data)
	}
}

func TestServerHandlerErrorKeepsConnectionOpen(t *testing.T) {
	_, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)

	writeFrame(t, conn, `{"type":"Fail"}`)
	env := readEnvelope(t, conn)
	if env.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want Error", env.Type)
	}
	if !strings.Contains(string(env.Data), `"message"`) {
		t.Errorf("error data = %s, want a message", env.Data)
	}

	writeFrame(t, conn, `{"type":"Echo","data":{"text":"still here"}}`)
	if env := readEnvelope(t, conn); env.Type != "Echo" {
		t.Errorf("reply type = %q, want Echo", env.Type)
	}
}

func TestServerMalformedFrame(t *testing.T) {
	_, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)

	writeFrame(t, conn, `not json`)
	if env := readEnvelope(t, conn); env.Type != protocol.TypeError {
		t.Errorf("reply type = %q, want Error", env.Type)
	}
}

func TestServerRepliesInArrivalOrder(t *testing.T) {
	_, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)

	const n = 50
	for i := 0; i < n; i++ {
		writeFrame(t, conn, fmt.Sprintf(`{"type":"Echo","data":{"text":"%d"}}`, i))
	}
	for i := 0; i < n; i++ {
		env := readEnvelope(t, conn)
		if want := fmt.Sprintf(`"%d"`, i); string(env.Data) != want {
			t.Fatalf("reply %d = %s, want %s", i, env.Data, want)
		}
	}
}

func TestServerIndependentConnections(t *testing.T) {
	s, url := newTestServer(t, nil)
	a := dialWS(t, url, nil)
	b := dialWS(t, url, nil)
	waitFor(t, "two connections", func() bool { return s.Connections().Count() == 2 })

	writeFrame(t, a, `{"type":"Echo","data":{"text":"a"}}`)
	writeFrame(t, b, `{"type":"Echo","data":{"text":"b"}}`)

	if env := readEnvelope(t, a); string(env.Data) != `"a"` {
		t.Errorf("a got %s", env.Data)
	}
	if env := readEnvelope(t, b); string(env.Data) != `"b"` {
		t.Errorf("b got %s", env.Data)
	}
}

func TestServerMaxConnections(t *testing.T) {
	s, url := newTestServer(t, DefaultConfig().WithMaxConnections(1))
	dialWS(t, url, nil)
	waitFor(t, "first connection", func() bool { return s.Connections().Count() == 1 })

	second := dialWS(t, url, nil)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("second connection read error = %v, want close 1013", err)
	}
	if s.Connections().Count() != 1 {
		t.Errorf("Count() = %d, want 1", s.Connections().Count())
	}
}

func TestServerNoIdleTimeoutByDefault(t *testing.T) {
	s, url := newTestServer(t, nil)
	conn := dialWS(t, url, nil)
	waitFor(t, "connection", func() bool { return s.Connections().Count() == 1 })

	time.Sleep(150 * time.Millisecond)
	if s.Connections().Count() != 1 {
		t.Fatal("connection should stay open without traffic")
	}
	writeFrame(t, conn, `{"type":"Echo","data":{"text":"late"}}`)
	if env := readEnvelope(t, conn); env.Type != "Echo" {
		t.Errorf("reply type = %q, want Echo", env.Type)
	}
}

func TestServerIdleTimeoutWhenConfigured(t *testing.T) {
	closed := make(chan string, 1)
	s, url := newTestServer(t, DefaultConfig().WithIdleTimeout(50*time.Millisecond))
	s.Connections().SetOnClose(func(_ *Connection, reason string) { closed <- reason })
	dialWS(t, url, nil)

	select {
	case reason := <-closed:
		if reason != "idle timeout" {
			t.Errorf("close reason = %q, want idle timeout", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed after the idle timeout")
	}
}

func TestServerClientCloseDeregisters(t *testing.T) {
	closed := make(chan string, 1)
	s, url := newTestServer(t, nil)
	s.Connections().SetOnClose(func(_ *Connection, reason string) { closed <- reason })

	conn := dialWS(t, url, nil)
	waitFor(t, "connection", func() bool { return s.Connections().Count() == 1 })

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))

	select {
	case reason := <-closed:
		if reason != "client closed" {
			t.Errorf("close reason = %q, want client closed", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onClose was not called")
	}
	if s.Connections().Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Connections().Count())
	}
}

func TestServerHealthz(t *testing.T) {
	s := New(nil, testRouter(), WithLogger(testLogger()))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", rr.Code, rr.Body.String())
	}

	failing := New(nil, testRouter(), WithLogger(testLogger()),
		WithHealthCheck(func(context.Context) error { return errors.New("no model loaded") }))
	rr = httptest.NewRecorder()
	failing.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "no model loaded") {
		t.Errorf("failing healthz = %d %s", rr.Code, rr.Body.String())
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, url := newTestServer(t, nil, WithRegistry(reg))
	conn := dialWS(t, url, nil)
	writeFrame(t, conn, `{"type":"Echo","data":{"text":"x"}}`)
	readEnvelope(t, conn)

	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	for _, name := range []string{"tempo_server_active_connections 1", "tempo_server_messages_received_total 1"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestServerUpgradeErrorDoesNotPanic(t *testing.T) {
	s := New(nil, testRouter(), WithLogger(testLogger()))
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, DefaultEndpointPath, nil)

	// Not a websocket upgrade request; should just log/return.
	s.ServeHTTP(rr, req)
	if s.Connections().Count() != 0 {
		t.Error("no connection should be registered")
	}
}

func TestServerServeStopsOnContextCancel(t *testing.T) {
	s := New(nil, testRouter(), WithLogger(testLogger()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + DefaultEndpointPath
	var conn *websocket.Conn
	waitFor(t, "server to accept", func() bool {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	})
	defer conn.Close()
	waitFor(t, "connection", func() bool { return s.Connections().Count() == 1 })

	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Serve() to return")
	}
	if s.Connections().Count() != 0 {
		t.Error("shutdown should close every connection")
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client should observe the close")
	}
}

func TestServerRunRejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig().WithIdleTimeout(-time.Second)
	s := New(config, testRouter(), WithLogger(testLogger()))
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("Run() should reject a negative idle timeout")
	}
}
