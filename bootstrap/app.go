package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mintel/lpipe/batch"
	"github.com/mintel/lpipe/component"
	"github.com/mintel/lpipe/config"
	"github.com/mintel/lpipe/dispatch"
	"github.com/mintel/lpipe/logger"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/resilience"
	"github.com/mintel/lpipe/route"
	"github.com/mintel/lpipe/server"
	"github.com/mintel/lpipe/transport"
	"github.com/mintel/lpipe/transport/kafka"
	"github.com/mintel/lpipe/transport/redis"
)

// ErrShutdown is returned when an application is started after Shutdown.
// The telemetry providers are closed for good at that point, so a new App
// has to be built instead.
var ErrShutdown = errors.New("bootstrap: application has been shut down")

// App is a routing table wired to the configured transports and, when
// enabled, the HTTP ingress.
//
//	app, err := bootstrap.New(cfg, table)
//	summary, err := app.Invoke(ctx, body) // warm, reusable
//	err = app.Serve(ctx)                  // blocks until a signal
type App struct {
	Name       string
	Version    string
	Cfg        *config.Config
	Components *component.Registry
	Logger     *logger.Logger
	Processor  *batch.Processor
	Router     *transport.Router
	Metrics    *observability.Metrics
	Summary    *Summary

	gracefulTimeout time.Duration
	providers       []func(context.Context) error
	table           *route.Table
	opts            *appOptions

	mu      sync.Mutex
	started bool
	closed  bool

	onStart []Hook
	onReady []Hook
	onStop  []Hook
}

// New validates cfg and assembles the application around table. Nothing
// is started until Start, Invoke or Serve.
func New(cfg *config.Config, table *route.Table, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if table == nil {
		return nil, fmt.Errorf("routing table is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := resolveOptions(opts)
	app := &App{
		Name:            cfg.Name,
		Version:         cfg.Version,
		Cfg:             cfg,
		Router:          transport.NewRouter(),
		gracefulTimeout: 15 * time.Second,
		table:           table,
		opts:            o,
	}
	if o.gracefulTimeout != nil {
		app.gracefulTimeout = *o.gracefulTimeout
	}
	if o.logger != nil {
		app.Logger = o.logger
	} else {
		app.Logger = logger.New(&cfg.Logging, cfg.Name)
	}
	app.Components = component.NewRegistry(app.Logger)
	app.Summary = NewSummary(cfg.Name, cfg.Version)

	if err := app.initObservability(); err != nil {
		return nil, err
	}
	cleaner, err := app.initTransports()
	if err != nil {
		return nil, err
	}

	procOpts := []batch.Option{
		batch.WithSource(cfg.Source),
		batch.WithDebug(cfg.Debug),
		batch.WithMaxDepth(cfg.MaxDepth),
		batch.WithLogger(app.Logger),
		batch.WithMetrics(app.Metrics),
		batch.WithServiceName(cfg.Name),
		batch.WithPutter(app.Router),
		batch.WithCleaner(cleaner),
		batch.WithObserver(observability.NewFailureObserver(app.Metrics, app.Logger)),
	}
	if cfg.DefaultPath != "" {
		procOpts = append(procOpts, batch.WithDefaultPath(route.Name(cfg.DefaultPath)))
	}
	app.Processor = batch.New(table, procOpts...)

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, app.Logger)
		srv.RegisterHealth(app.Health)
		srv.RegisterInvoke(app.Processor)
		if err := app.Components.Register(server.NewComponent(srv)); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// initObservability installs the OTLP providers when enabled and creates
// the metric instruments on the global meter.
func (a *App) initObservability() error {
	oc := a.Cfg.Observability
	if oc.Enabled {
		ctx := context.Background()
		tp, err := observability.InitTracer(ctx, oc.Tracer(a.Name, a.Cfg.Environment))
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		a.providers = append(a.providers, tp.Shutdown)
		mp, err := observability.InitMeter(ctx, oc.Meter(a.Name, a.Cfg.Environment))
		if err != nil {
			return errors.Join(fmt.Errorf("init meter: %w", err), tp.Shutdown(ctx))
		}
		a.providers = append(a.providers, mp.Shutdown)
	}

	if a.opts.metrics != nil {
		a.Metrics = a.opts.metrics
		return nil
	}
	m, err := observability.NewMetrics(observability.Meter(a.Name))
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a.Metrics = m
	return nil
}

// initTransports registers a putter per transport and returns the cleaner
// used for aborted batches. Putters passed as options win over the
// configured components. Stream and queue putters sit behind a delivery
// circuit breaker.
func (a *App) initTransports() (batch.Cleaner, error) {
	var cleanup transport.CleanupRouter
	putters := map[route.Transport]dispatch.Putter{
		route.TransportRaw: transport.NewLogPutter(a.Logger),
	}

	if a.Cfg.Kafka.Enabled {
		kc := kafka.NewComponent(a.Cfg.Kafka, a.Logger)
		if err := a.Components.Register(kc); err != nil {
			return nil, err
		}
		putters[route.TransportStream] = kc
	}
	if a.Cfg.Redis.Enabled {
		rc := redis.NewComponent(a.Cfg.Redis, a.Logger)
		if err := a.Components.Register(rc); err != nil {
			return nil, err
		}
		putters[route.TransportQueue] = rc
		cleanup.Queue = rc
	}
	for kind, p := range a.opts.putters {
		putters[kind] = p
	}

	for _, kind := range route.Transports {
		p, ok := putters[kind]
		if !ok {
			continue
		}
		if kind != route.TransportRaw {
			p = resilience.NewGuard(kind, p, a.Cfg.Delivery, a.Logger)
		}
		a.Router.Handle(kind, p)
	}

	if a.opts.cleaner != nil {
		return a.opts.cleaner, nil
	}
	return cleanup, nil
}

// RegisterComponent adds a component to the application's registry. It
// must be called before Start.
func (a *App) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// Health reports the health of every registered component.
func (a *App) Health(ctx context.Context) *observability.ServiceHealth {
	return a.Components.Health(ctx, a.Name, a.Version)
}

// ReadyCheck verifies that all registered components are up.
func (a *App) ReadyCheck(ctx context.Context) error {
	var unhealthy []string
	for _, h := range a.Health(ctx).Components {
		if h.Status == observability.HealthStatusUp {
			continue
		}
		detail := h.Name + "=" + string(h.Status)
		if h.Message != "" {
			detail += "(" + h.Message + ")"
		}
		unhealthy = append(unhealthy, detail)
	}
	if len(unhealthy) > 0 {
		return fmt.Errorf("unhealthy components: %v", unhealthy)
	}
	return nil
}

// Invoke processes one batch, starting the components on first use. They
// stay up between calls until Shutdown, so warm invocations reuse
// connections. Shutdown is terminal: later calls fail with ErrShutdown.
func (a *App) Invoke(ctx context.Context, body []byte) (*batch.Summary, error) {
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return a.Processor.Process(ctx, body)
}

// RunOnce starts the application, processes a single batch and shuts
// down for good.
func (a *App) RunOnce(ctx context.Context, body []byte) (*batch.Summary, error) {
	var summary *batch.Summary
	err := a.RunTask(ctx, func(ctx context.Context) error {
		var err error
		summary, err = a.Processor.Process(ctx, body)
		return err
	})
	return summary, err
}

// Serve starts the application and blocks until a shutdown signal or the
// cancellation of ctx, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.Logger.Info("Application ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)

	return a.stop()
}

// RunTask runs a finite task with the full lifecycle: start, task, then
// graceful shutdown. The task context is canceled on SIGINT or SIGTERM.
func (a *App) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.Logger.Info("Received signal, canceling task", logger.Fields("signal", sig.String()))
			cancel()
		case <-taskCtx.Done():
		}
	}()

	taskErr := task(taskCtx)

	if stopErr := a.stop(); stopErr != nil {
		if taskErr != nil {
			return taskErr
		}
		return stopErr
	}
	return taskErr
}

// Start runs the startup sequence once: components, OnStart hooks, ready
// check and OnReady hooks. Later calls return nil until Shutdown, after
// which they return ErrShutdown.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrShutdown
	}
	if a.started {
		return nil
	}

	start := time.Now()
	a.Logger.Info("Starting application", logger.Fields(
		"name", a.Name,
		"version", a.Version,
		"source", a.Cfg.Source.String(),
		"table", shortFingerprint(a.table.Fingerprint()),
	))

	if err := a.Components.StartAll(ctx); err != nil {
		// StartAll leaves the components it started running.
		_ = a.Components.StopAll(context.Background())
		return fmt.Errorf("initialization failed: %w", err)
	}
	a.started = true

	if err := runHooks(ctx, a.onStart); err != nil {
		return fmt.Errorf("onStart hook failed: %w", err)
	}
	if err := a.ReadyCheck(ctx); err != nil {
		a.Logger.Warn("Ready check reported issues", logger.Fields(logger.FieldError, err.Error()))
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		return fmt.Errorf("onReady hook failed: %w", err)
	}

	a.Summary.SetStartupDuration(time.Since(start))
	if a.opts.summaryOutput != nil {
		a.Summary.Collect(ctx, a.Components, a.Router, a.table)
		a.Summary.Write(a.opts.summaryOutput)
	}
	return nil
}

// WaitForSignal blocks until an OS interrupt/term signal or context cancellation.
func (a *App) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal, graceful shutdown starting", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// Shutdown stops the application and closes its telemetry providers. The
// App cannot be started again.
func (a *App) Shutdown(_ context.Context) error {
	return a.stop()
}

// stop runs the OnStop hooks, stops the components in reverse order and
// flushes the telemetry providers, all within the graceful timeout.
func (a *App) stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var shutdownErr error
	if a.started {
		if err := runHooks(ctx, a.onStop); err != nil {
			a.Logger.WithError(err).Error("OnStop hook error")
			shutdownErr = err
		}
		if err := a.Components.StopAll(ctx); err != nil {
			a.Logger.WithError(err).Error("Shutdown completed with errors")
			shutdownErr = err
		}
		a.started = false
	}

	for _, shutdown := range a.providers {
		if err := shutdown(ctx); err != nil {
			a.Logger.WithError(err).Error("Telemetry provider shutdown error")
			if shutdownErr == nil {
				shutdownErr = err
			}
		}
	}
	a.providers = nil
	a.closed = true

	a.Logger.Info("Application shutdown complete")
	return shutdownErr
}
