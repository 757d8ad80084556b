package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/overturetool/tempo-plotting-tool/pkg/dispatch"
	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func wsURL(t *testing.T, baseURL, path string) string {
	t.Helper()
	if !strings.HasPrefix(baseURL, "http") {
		t.Fatalf("unexpected base URL: %q", baseURL)
	}
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type echoRequest struct {
	Text string `json:"text"`
}

// testRouter registers Echo (replies with the text) and Fail (returns an
// error).
func testRouter() *dispatch.Router {
	reg := dispatch.NewRegistry(testLogger())
	reg.MustRegister(
		dispatch.NewHandler("Echo", func(ctx context.Context, req *echoRequest, conn dispatch.Conn) error {
			return dispatch.Reply(ctx, conn, "Echo", req.Text)
		}),
		dispatch.NewHandler("Fail", func(context.Context, *struct{}, dispatch.Conn) error {
			return errFail
		}),
	)
	return dispatch.NewRouter(reg, dispatch.WithLogger(testLogger()))
}

var errFail = errors.New("handler failed")

// startServer runs s behind an httptest server and returns the
// subscription URL.
func startServer(t *testing.T, s *Server) string {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Connections().Shutdown(context.Background())
		ts.Close()
	})
	return wsURL(t, ts.URL, s.Config().EndpointPath)
}

func newTestServer(t *testing.T, config *Config, opts ...Option) (*Server, string) {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	s := New(config, testRouter(), opts...)
	return s, startServer(t, s)
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	env, err := protocol.Decode(msg)
	if err != nil {
		t.Fatalf("decode %q failed: %v", msg, err)
	}
	return env
}
