package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"foundry/action"
	"foundry/api"
	"foundry/config"
	"foundry/controller"
	"foundry/controller/builtin"
	"foundry/di"
	"foundry/metrics"
	"foundry/odm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("bootstrap already started")

// State is a step of the run sequence.
type State int32

const (
	StateNotStarted State = iota
	StateHTTPStarting
	StateODMConnecting
	StateControllersRegistering
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateHTTPStarting:
		return "http_starting"
	case StateODMConnecting:
		return "odm_connecting"
	case StateControllersRegistering:
		return "controllers_registering"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Bootstrap owns the running pieces of an application: the HTTP application and its listener,
// the ODM connection manager, the DI container and the action registry.
type Bootstrap struct {
	opts   RunOptions
	paths  resolvedPaths
	env    string
	config *config.Store
	params config.Parameters
	logger *zap.SugaredLogger

	container      *di.Container
	registry       *action.Registry
	catalog        *controller.Catalog
	drivers        map[string]odm.DriverFactory
	subscribers    map[string]odm.SubscriberFunc
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer

	started atomic.Bool
	state   atomic.Int32

	loadOnce sync.Once
	loadErr  error

	mu          sync.RWMutex
	app         *api.App
	server      *api.Server
	health      *api.Health
	limiter     *api.RateLimiter
	httpConfig  config.HTTPConfig
	odmManager  *odm.ConnectionManager
	controllers []controller.Manifest
}

// New loads the configuration and parameters and prepares the container and registry.
// Configuration errors are returned here, before anything is started.
func New(opts RunOptions, options ...Option) (*Bootstrap, error) {
	b := &Bootstrap{
		opts:        opts,
		paths:       opts.resolve(),
		env:         config.Environment(opts.Environment),
		drivers:     map[string]odm.DriverFactory{odm.MongoDriverName: odm.NewMongoDriver},
		subscribers: make(map[string]odm.SubscriberFunc),
	}
	for _, o := range options {
		o(b)
	}

	store, params, err := loadConfiguration(b.paths, b.env)
	if err != nil {
		return nil, err
	}
	b.config = store
	b.params = params

	if b.logger == nil {
		logging, err := store.Logging()
		if err != nil {
			return nil, err
		}
		logger, err := InitLogger(logging.Level, logging.Format)
		if err != nil {
			return nil, err
		}
		b.logger = logger.Sugar()
	}
	if b.container == nil {
		b.container = di.New()
	}
	if b.registry == nil {
		b.registry = action.NewRegistry(b.logger)
	}
	if b.catalog == nil {
		b.catalog = builtin.NewCatalog()
	}
	if b.tracerProvider == nil {
		b.tracerProvider = otel.GetTracerProvider()
	}
	b.tracer = b.tracerProvider.Tracer("foundry/bootstrap")

	di.Set(b.container, b.config)
	di.Set(b.container, b.params)
	di.Set(b.container, b.logger)
	di.Set(b.container, b.registry)
	di.Provide(b.container, b.provideConnectionManager)

	b.logger.Infow("Configuration loaded",
		"environment", b.env,
		"files", store.Files(),
		"parameters", len(params))
	return b, nil
}

func (b *Bootstrap) provideConnectionManager(_ context.Context, c *di.Container) (*odm.ConnectionManager, error) {
	m := odm.NewConnectionManager(b.logger.Named("odm"))
	m.SetContainer(c)
	for name, fn := range b.subscribers {
		if err := m.RegisterSubscriber(name, fn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Run starts the application: HTTP first, then the ODM when configured, then the controllers.
// Controllers are bound only once the HTTP listener is open and the ODM is connected. If any
// step fails after the listener opened, the listener is closed and the step's error returned.
func (b *Bootstrap) Run(ctx context.Context) (err error) {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, span := b.tracer.Start(ctx, "foundry.bootstrap")
	defer span.End()

	defer func() {
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return
		}
		b.setState(StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.closeAfterFailure()
		b.logger.Errorw("Startup failed", "error", err)
	}()

	b.setState(StateHTTPStarting)
	if err := b.phase(ctx, "http", b.setupHTTP); err != nil {
		return err
	}

	var g errgroup.Group
	if b.config.HasODM() {
		b.setState(StateODMConnecting)
		g.Go(func() error {
			return b.phase(ctx, "odm", b.setupODM)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b.setState(StateControllersRegistering)
	if err := b.phase(ctx, "controllers", b.setupControllers); err != nil {
		return err
	}

	b.setState(StateRunning)
	span.SetAttributes(attribute.Int("foundry.actions", len(b.registry.Actions())))
	b.logger.Infof("Application running on %s", b.Server().Addr())
	return nil
}

// closeAfterFailure closes the listener and the rate limiter opened by setupHTTP.
func (b *Bootstrap) closeAfterFailure() {
	b.mu.RLock()
	server, limiter := b.server, b.limiter
	b.mu.RUnlock()

	if server != nil {
		if err := server.Close(); err != nil {
			b.logger.Warnw("Failed to close HTTP listener", "error", err)
		}
		b.logger.Info("HTTP listener closed after failed startup")
	}
	if limiter != nil {
		if err := limiter.Close(); err != nil {
			b.logger.Warnw("Failed to close rate limiter", "error", err)
		}
	}
}

// phase runs fn in its own span and records its duration.
func (b *Bootstrap) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, "foundry.bootstrap."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.RecordPhase(name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	b.logger.Debugw("Bootstrap phase completed", "phase", name, "duration", time.Since(start))
	return nil
}

func (b *Bootstrap) setState(s State) {
	b.state.Store(int32(s))
	metrics.BootstrapState.Set(float64(s))
}

// State returns the current startup state.
func (b *Bootstrap) State() State {
	return State(b.state.Load())
}

// Config returns the configuration loaded by New.
func (b *Bootstrap) Config() *config.Store {
	return b.config
}

// Parameters returns the parameters loaded by New.
func (b *Bootstrap) Parameters() config.Parameters {
	return b.params
}

// Logger returns the application logger.
func (b *Bootstrap) Logger() *zap.SugaredLogger {
	return b.logger
}

// Container returns the dependency container shared by every subsystem.
func (b *Bootstrap) Container() *di.Container {
	return b.container
}

// Registry returns the action registry controllers register with.
func (b *Bootstrap) Registry() *action.Registry {
	return b.registry
}

// App returns the HTTP application, or nil before Run.
func (b *Bootstrap) App() *api.App {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.app
}

// Server returns the HTTP listener, or nil if it was never opened.
func (b *Bootstrap) Server() *api.Server {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.server
}

// ODMConnectionManager returns the connection manager, or nil when no ODM is configured.
func (b *Bootstrap) ODMConnectionManager() *odm.ConnectionManager {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.odmManager
}

// Controllers returns the controller manifests loaded by Run.
func (b *Bootstrap) Controllers() []controller.Manifest {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]controller.Manifest, len(b.controllers))
	copy(out, b.controllers)
	return out
}

// WaitForShutdown blocks until SIGINT or SIGTERM is received, ctx is done or the HTTP server
// stops on its own. The latter returns the server error.
func (b *Bootstrap) WaitForShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serverDone <-chan struct{}
	if server := b.Server(); server != nil {
		serverDone = server.Done()
	}
	select {
	case <-ctx.Done():
		return nil
	case <-serverDone:
		if err := b.Server().Err(); err != nil {
			return fmt.Errorf("HTTP server stopped: %w", err)
		}
		return nil
	}
}

// Shutdown stops the HTTP server gracefully, then closes the rate limiter and everything the
// container built, including the ODM connection.
func (b *Bootstrap) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down...")

	b.mu.RLock()
	server, limiter, timeout := b.server, b.limiter, b.httpConfig.ShutdownTimeout
	b.mu.RUnlock()

	var errs []error
	if server != nil {
		shutdownCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}
	if limiter != nil {
		if err := limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rate limiter: %w", err))
		}
	}
	if err := b.container.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		b.logger.Errorw("Shutdown completed with errors", "error", err)
	} else {
		b.logger.Info("Shutdown complete")
	}
	_ = b.logger.Sync()
	return err
}
