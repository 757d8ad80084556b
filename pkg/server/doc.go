// Package server provides the WebSocket runtime of the subscription service.
//
// The server package accepts long-lived client connections, feeds their
// frames to a Dispatcher and sends replies and notifications back.
//
// # Architecture
//
//   - Connection: one client channel with a ULID, serialized writes and an
//     ordered read loop
//   - ConnectionManager: tracks open connections; unicast, broadcast and
//     lifecycle callbacks
//   - Server: chi router exposing the subscription endpoint, /healthz and
//     /metrics, with graceful shutdown
//
// # Connection Lifecycle
//
// A Connection is created when the upgrade succeeds and destroyed when
// either side closes. It has no idle timeout unless Config.IdleTimeout is
// set; nothing survives a reconnect.
//
// Each connection runs a single read goroutine. Frames are dispatched
// synchronously in arrival order, so a slow handler delays later frames of
// the same connection but never those of other connections.
//
// # Example Usage
//
//	router := dispatch.NewRouter(registry)
//	srv := server.New(server.DefaultConfig().WithAddress(":8080"), router,
//	    server.WithRegistry(prometheus.NewRegistry()))
//
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
//   - Connection.mu serializes WebSocket writes
//   - ConnectionManager uses an RWMutex for the connection map
//   - Broadcast iterates over a snapshot and may run concurrently with Send
package server
