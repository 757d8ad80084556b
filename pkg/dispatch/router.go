package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

// Invocation is one registered message on its way to a handler.
type Invocation struct {
	Type  string
	Conn  Conn
	Frame []byte
}

// HandleFunc runs an invocation.
type HandleFunc func(ctx context.Context, inv *Invocation) error

// Middleware wraps handler execution. Middleware runs inside the fault
// barrier, so errors it returns are reported like handler errors.
type Middleware func(next HandleFunc) HandleFunc

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithUnregisteredHook sets a callback run for every dropped frame.
func WithUnregisteredHook(fn func(msgType string)) RouterOption {
	return func(r *Router) {
		r.onUnregistered = fn
	}
}

// Router dispatches frames to the handlers of a Registry.
type Router struct {
	registry       *Registry
	logger         *slog.Logger
	onUnregistered func(msgType string)

	mu         sync.RWMutex
	middleware []Middleware
}

// NewRouter creates a router over reg.
func NewRouter(reg *Registry, opts ...RouterOption) *Router {
	r := &Router{
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "message_router")
	return r
}

// Registry returns the registry the router reads from.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Use appends middleware. The first middleware added is the outermost.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	r.middleware = append(r.middleware, mw...)
	r.mu.Unlock()
}

// Dispatch routes one frame received on conn. It returns the fault reported
// to the client, if any. Frames of unregistered types return nil and
// produce no reply.
func (r *Router) Dispatch(ctx context.Context, conn Conn, frame []byte) error {
	msgType, err := protocol.PeekType(frame)
	if err != nil {
		return Guard(ctx, r.logger, conn, "", func(context.Context) error {
			return err
		})
	}

	h, ok := r.registry.Lookup(msgType)
	if !ok {
		r.logger.Debug("dropping unregistered message",
			"type", msgType,
			"conn_id", conn.ID())
		if r.onUnregistered != nil {
			r.onUnregistered(msgType)
		}
		return nil
	}

	inv := &Invocation{Type: msgType, Conn: conn, Frame: frame}
	next := r.chain(invoke(h))
	return Guard(ctx, r.logger, conn, msgType, func(ctx context.Context) error {
		return next(ctx, inv)
	})
}

func (r *Router) chain(final HandleFunc) HandleFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.middleware) - 1; i >= 0; i-- {
		final = r.middleware[i](final)
	}
	return final
}

func invoke(h Handler) HandleFunc {
	return func(ctx context.Context, inv *Invocation) error {
		payload, err := h.Decode(inv.Frame)
		if err != nil {
			return err
		}
		return h.Handle(ctx, payload, inv.Conn)
	}
}
