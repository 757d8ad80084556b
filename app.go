package tempo

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/overturetool/tempo-plotting-tool/internal/config"
	"github.com/overturetool/tempo-plotting-tool/internal/errors"
	"github.com/overturetool/tempo-plotting-tool/internal/interp"
	"github.com/overturetool/tempo-plotting-tool/internal/logging"
	"github.com/overturetool/tempo-plotting-tool/internal/source"
	"github.com/overturetool/tempo-plotting-tool/pkg/dispatch"
	"github.com/overturetool/tempo-plotting-tool/pkg/handlers"
	"github.com/overturetool/tempo-plotting-tool/pkg/model"
	"github.com/overturetool/tempo-plotting-tool/pkg/notify"
	"github.com/overturetool/tempo-plotting-tool/pkg/server"
)

// App wires the interpreter, the model handlers, the notification bus and
// the WebSocket server into one service.
type App struct {
	config *config.Config
	logger *slog.Logger

	runtime  *interp.Runtime
	builder  *model.Builder
	registry *dispatch.Registry
	router   *dispatch.Router
	server   *server.Server
	bus      *notify.Bus
	metrics  *prometheus.Registry
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger         *slog.Logger
	source         *string
	loader         *source.Loader
	tracerProvider trace.TracerProvider
}

// WithLogger overrides the logger built from the log config.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSource uses src instead of loading model.source.
func WithSource(src string) Option {
	return func(o *options) {
		o.source = &src
	}
}

// WithLoader sets the loader used for model.source.
func WithLoader(l *source.Loader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithTracerProvider sets the provider for dispatch spans. Default: the
// global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// New loads the model and assembles the service. Startup failures are
// returned as *errors.TempoError.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		level, _ := logging.ParseLevel(cfg.Log.Level)
		logger = logging.New(level, logging.Format(strings.ToLower(cfg.Log.Format)))
	}

	src, err := loadSource(ctx, cfg, &o)
	if err != nil {
		return nil, err
	}

	interpOpts := []interp.Option{interp.WithLogger(logger)}
	if len(cfg.Model.AllowedImports) > 0 {
		interpOpts = append(interpOpts, interp.WithAllowedImports(cfg.Model.AllowedImports...))
	}
	rt, err := interp.New(ctx, src, interpOpts...)
	if err != nil {
		return nil, sourceError(err, src)
	}

	a := &App{
		config:  cfg,
		logger:  logger,
		runtime: rt,
	}
	a.builder = model.NewBuilder(rt, builderOptions(cfg, logger)...)
	if cfg.Model.Root != "" {
		if err := a.builder.SelectRoot(cfg.Model.Root); err != nil {
			return nil, errors.New("T204").Wrap(err)
		}
	}

	routerOpts := []dispatch.RouterOption{dispatch.WithLogger(logger)}
	var dispatchMetrics *dispatch.Metrics
	if cfg.Metrics.Enabled {
		a.metrics = prometheus.NewRegistry()
		a.metrics.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		dispatchMetrics = dispatch.NewMetrics(a.metrics)
		routerOpts = append(routerOpts, dispatch.WithUnregisteredHook(dispatchMetrics.Unregistered))
	}

	a.registry = dispatch.NewRegistry(logger)
	a.router = dispatch.NewRouter(a.registry, routerOpts...)
	var tracingOpts []dispatch.TracingOption
	if o.tracerProvider != nil {
		tracingOpts = append(tracingOpts, dispatch.WithTracerProvider(o.tracerProvider))
	}
	a.router.Use(dispatch.Tracing(tracingOpts...))
	if dispatchMetrics != nil {
		a.router.Use(dispatchMetrics.Middleware())
	}

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithHealthCheck(a.health),
	}
	if a.metrics != nil {
		serverOpts = append(serverOpts, server.WithRegistry(a.metrics))
	}
	sc := serverConfig(cfg)
	if err := sc.Validate(); err != nil {
		return nil, errors.New("T103").Wrap(err)
	}
	a.server = server.New(sc, a.router, serverOpts...)

	subs := notify.NewSubscriptions()
	a.bus = notify.NewBus(subs, a.server.Connections(), logger)
	a.server.Connections().SetOnClose(func(c *server.Connection, reason string) {
		subs.Drop(c.ID())
	})

	handlers.New(rt, a.builder, subs, a.bus, handlers.WithLogger(logger)).Register(a.registry)

	logger.Info("tempo ready",
		"classes", len(rt.Classes()),
		"handlers", a.registry.Len(),
		"endpoint", cfg.Server.Endpoint)
	return a, nil
}

func loadSource(ctx context.Context, cfg *config.Config, o *options) (string, error) {
	if o.source != nil {
		return *o.source, nil
	}
	loader := o.loader
	if loader == nil {
		loader = source.NewLoader(
			source.WithEndpoint(cfg.Model.S3Endpoint),
			source.WithRegion(cfg.Model.S3Region),
		)
	}
	src, err := loader.Load(ctx, cfg.Model.Source)
	if err != nil {
		return "", errors.New("T200").
			WithDetail("Source: " + cfg.Model.Source).
			Wrap(err)
	}
	return src, nil
}

// sourceError maps an interpreter load failure to a coded error.
func sourceError(err error, src string) error {
	switch {
	case stderrors.Is(err, interp.ErrForbiddenImport):
		return errors.New("T202").Wrap(err)
	case stderrors.Is(err, interp.ErrInvalidSource):
		return errors.New("T201").
			WithLocationFromError(err).
			WithSource(src).
			Wrap(err)
	default:
		return errors.FromError(err, "T201")
	}
}

func builderOptions(cfg *config.Config, logger *slog.Logger) []model.BuilderOption {
	opts := []model.BuilderOption{model.WithLogger(logger)}
	if cfg.Model.CycleGuard == config.GuardSelf {
		opts = append(opts, model.WithCycleGuard(model.GuardSelf))
	}
	if cfg.Model.MaxDepth > 0 {
		opts = append(opts, model.WithMaxDepth(cfg.Model.MaxDepth))
	}
	return opts
}

func serverConfig(cfg *config.Config) *server.Config {
	sc := server.DefaultConfig().
		WithAddress(cfg.Server.Address).
		WithEndpointPath(cfg.Server.Endpoint).
		WithIdleTimeout(cfg.IdleTimeout()).
		WithMaxConnections(cfg.Server.MaxConnections).
		WithTrustedProxies(cfg.Server.TrustedProxies...)
	if len(cfg.Server.AllowedOrigins) > 0 {
		sc = sc.WithCheckOrigin(server.AllowOrigins(cfg.Server.AllowedOrigins...))
	}
	if d := cfg.ShutdownTimeout(); d > 0 {
		sc.ShutdownTimeout = d
	}
	return sc
}

func (a *App) health(ctx context.Context) error {
	select {
	case <-a.bus.Ready():
		return nil
	default:
		return stderrors.New("notification bus not running")
	}
}

// Run listens on server.address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Server.Address)
	if err != nil {
		return errors.New("T301").Wrap(err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the server on ln and the notification bus until ctx is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.bus.Run(gctx)
	})
	g.Go(func() error {
		return a.server.Serve(gctx, ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.bus.Close()
	})

	if err := g.Wait(); err != nil {
		return errors.New("T302").Wrap(err)
	}
	return nil
}

// Server returns the WebSocket server.
func (a *App) Server() *server.Server {
	return a.server
}

// Builder returns the structure builder.
func (a *App) Builder() *model.Builder {
	return a.builder
}

// Runtime returns the interpreter hosting the model.
func (a *App) Runtime() *interp.Runtime {
	return a.runtime
}

// Registry returns the handler registry, for installing extra handlers.
func (a *App) Registry() *dispatch.Registry {
	return a.registry
}

// Bus returns the notification bus.
func (a *App) Bus() *notify.Bus {
	return a.bus
}

// Metrics returns the metrics registry, nil when metrics are disabled.
func (a *App) Metrics() *prometheus.Registry {
	return a.metrics
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
