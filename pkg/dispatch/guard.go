package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

// Guard runs fn inside the fault barrier. A returned error or a panic is
// reported to conn as a single Error envelope and returned as a
// *HandlerError. Guard never panics because of fn.
func Guard(ctx context.Context, logger *slog.Logger, conn Conn, msgType string, fn func(context.Context) error) (err error) {
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if r := recover(); r != nil {
			herr := &HandlerError{Type: msgType, ConnID: conn.ID(), Panic: r}
			logger.Error("handler panic",
				"type", msgType,
				"conn_id", conn.ID(),
				"panic", r,
				"stack", string(debug.Stack()))
			reportFault(ctx, logger, conn, herr)
			err = herr
		}
	}()

	if ferr := fn(ctx); ferr != nil {
		herr := &HandlerError{Type: msgType, ConnID: conn.ID(), Err: ferr}
		logger.Warn("handler failed",
			"type", msgType,
			"conn_id", conn.ID(),
			"error", ferr)
		reportFault(ctx, logger, conn, herr)
		return herr
	}
	return nil
}

// reportFault sends the Error envelope. A failed send is logged only: the
// read loop notices a dead connection on its own.
func reportFault(ctx context.Context, logger *slog.Logger, conn Conn, herr *HandlerError) {
	if err := conn.Send(ctx, protocol.NewError(herr.Message())); err != nil {
		logger.Debug("error reply not delivered",
			"conn_id", conn.ID(),
			"error", err)
	}
}
