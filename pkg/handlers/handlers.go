package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/overturetool/tempo-plotting-tool/pkg/dispatch"
	"github.com/overturetool/tempo-plotting-tool/pkg/model"
	"github.com/overturetool/tempo-plotting-tool/pkg/notify"
	"github.com/overturetool/tempo-plotting-tool/pkg/protocol"
)

var (
	ErrUnknownVariable = errors.New("handlers: unknown variable")
	ErrInvalidSteps    = errors.New("handlers: invalid step count")
	ErrMissingFunction = errors.New("handlers: missing function name")
	ErrMissingName     = errors.New("handlers: missing class name")
)

// DefaultMaxSteps bounds a single Run request.
const DefaultMaxSteps = 10000

// ModelRuntime is the live model the handlers drive.
type ModelRuntime interface {
	model.Runtime

	// Value formats the current value of a qualified variable name.
	Value(ctx context.Context, path string) (string, error)

	// Call invokes a parameterless operation of the root instance.
	Call(ctx context.Context, operation string) (string, error)
}

// Publisher pushes variable updates to subscribers.
type Publisher interface {
	Publish(ctx context.Context, update protocol.VariableUpdate) error
}

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxSteps bounds the steps of one Run request.
func WithMaxSteps(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxSteps = n
		}
	}
}

// Model holds the state shared by the model command handlers.
type Model struct {
	runtime  ModelRuntime
	builder  *model.Builder
	subs     *notify.Subscriptions
	pub      Publisher
	logger   *slog.Logger
	maxSteps int

	// runMu keeps the steps of concurrent runs from interleaving.
	runMu sync.Mutex
}

// New creates the handler set.
func New(rt ModelRuntime, b *model.Builder, subs *notify.Subscriptions, pub Publisher, opts ...Option) *Model {
	m := &Model{
		runtime:  rt,
		builder:  b,
		subs:     subs,
		pub:      pub,
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "model_handlers")
	return m
}

// Handlers returns one handler per model command.
func (m *Model) Handlers() []dispatch.Handler {
	return []dispatch.Handler{
		dispatch.NewHandler(protocol.TypeClassInfo, m.classInfo),
		dispatch.NewHandler(protocol.TypeRootClass, m.rootClass),
		dispatch.NewHandler(protocol.TypeModelStructure, m.modelStructure),
		dispatch.NewHandler(protocol.TypeFunctionInfo, m.functionInfo),
		dispatch.NewHandler(protocol.TypeSubscribe, m.subscribe),
		dispatch.NewHandler(protocol.TypeUnsubscribe, m.unsubscribe),
		dispatch.NewHandler(protocol.TypeRun, m.run),
	}
}

// Register installs every model command on reg.
func (m *Model) Register(reg *dispatch.Registry) {
	reg.MustRegister(m.Handlers()...)
}

type empty struct{}

func (m *Model) classInfo(ctx context.Context, _ *empty, conn dispatch.Conn) error {
	classes := m.runtime.Classes()
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Name)
	}
	return dispatch.Reply(ctx, conn, protocol.TypeClassInfo, names)
}

func (m *Model) rootClass(ctx context.Context, req *protocol.RootClassRequest, conn dispatch.Conn) error {
	if req.Name == "" {
		return ErrMissingName
	}
	if err := m.builder.SelectRoot(req.Name); err != nil {
		return err
	}
	return conn.Send(ctx, protocol.OK(protocol.TypeRootClass))
}

func (m *Model) modelStructure(ctx context.Context, _ *empty, conn dispatch.Conn) error {
	s, err := m.builder.Build(ctx)
	if err != nil {
		return err
	}
	return dispatch.Reply(ctx, conn, protocol.TypeModelStructure, s)
}

func (m *Model) functionInfo(ctx context.Context, _ *empty, conn dispatch.Conn) error {
	root := m.builder.Root()
	if root == nil {
		return model.ErrRootNotSelected
	}
	infos := make([]protocol.FunctionInfo, 0, len(root.Operations))
	for _, op := range root.Operations {
		infos = append(infos, protocol.FunctionInfo{
			Name:    op.Name,
			Params:  nonNil(op.Params),
			Results: nonNil(op.Results),
		})
	}
	return dispatch.Reply(ctx, conn, protocol.TypeFunctionInfo, infos)
}

func (m *Model) subscribe(ctx context.Context, req *protocol.SubscribeRequest, conn dispatch.Conn) error {
	s, err := m.builder.Build(ctx)
	if err != nil {
		return err
	}
	for _, name := range req.Variables {
		if s.Find(name) == nil {
			return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
		}
	}

	m.subs.Add(conn.ID(), req.Variables...)
	m.logger.Debug("subscribed", "conn_id", conn.ID(), "variables", req.Variables)
	return conn.Send(ctx, protocol.OK(protocol.TypeSubscribe))
}

func (m *Model) unsubscribe(ctx context.Context, req *protocol.SubscribeRequest, conn dispatch.Conn) error {
	m.subs.Remove(conn.ID(), req.Variables...)
	return conn.Send(ctx, protocol.OK(protocol.TypeUnsubscribe))
}

func (m *Model) run(ctx context.Context, req *protocol.RunRequest, conn dispatch.Conn) error {
	if req.Function == "" {
		return ErrMissingFunction
	}
	steps := req.Steps
	if steps == 0 {
		steps = 1
	}
	if steps < 0 || steps > m.maxSteps {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidSteps, req.Steps, m.maxSteps)
	}
	if _, err := m.builder.Build(ctx); err != nil {
		return err
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()

	for step := 1; step <= steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.runtime.Call(ctx, req.Function); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		if err := m.publish(ctx, step); err != nil {
			return err
		}
	}

	m.logger.Debug("run complete", "conn_id", conn.ID(), "function", req.Function, "steps", steps)
	return conn.Send(ctx, protocol.OK(protocol.TypeRun))
}

// publish pushes the current value of every watched variable. A variable
// that cannot be read, such as a field below a nil reference, is skipped so
// the other subscribers still get their update.
func (m *Model) publish(ctx context.Context, step int) error {
	for _, name := range m.subs.Watched() {
		value, err := m.runtime.Value(ctx, name)
		if err != nil {
			m.logger.Warn("variable not readable",
				"variable", name,
				"step", step,
				"error", err)
			continue
		}
		update := protocol.VariableUpdate{Name: name, Value: value, Step: step}
		if err := m.pub.Publish(ctx, update); err != nil {
			return err
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
