package dispatch

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps message type tags to handlers. Lookups may run concurrently
// with registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "handler_registry"),
	}
}

// Register stores h under its message type. Registering a second handler
// for the same tag replaces the first.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	tag := h.MessageType()
	if tag == "" {
		return ErrEmptyMessageType
	}

	r.mu.Lock()
	_, replaced := r.handlers[tag]
	r.handlers[tag] = h
	r.mu.Unlock()

	if replaced {
		r.logger.Warn("handler replaced", "type", tag)
	} else {
		r.logger.Debug("handler registered", "type", tag)
	}
	return nil
}

// MustRegister is Register for static wiring. It panics on error.
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the handler for tag.
func (r *Registry) Lookup(tag string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[tag]
	r.mu.RUnlock()
	return h, ok
}

// Types returns the registered tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		types = append(types, tag)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
