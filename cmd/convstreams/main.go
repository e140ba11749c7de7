// Package main implements the entry point for the convstreams server.
// convstreams analyzes chat conversations through a configurable stage
// pipeline, maintains search templates and queries over the extracted
// tokens, and serves the results over a small REST API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/convstreams/config"
	"github.com/c360/convstreams/dispatch"
	"github.com/c360/convstreams/engine"
	"github.com/c360/convstreams/engine/querybuilders"
	gateway "github.com/c360/convstreams/gateway/http"
	"github.com/c360/convstreams/health"
	"github.com/c360/convstreams/metric"
	"github.com/c360/convstreams/natsclient"
	"github.com/c360/convstreams/pipeline"
	"github.com/c360/convstreams/pipeline/stages"
	"github.com/c360/convstreams/service"
	"github.com/c360/convstreams/store"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "convstreams"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	registry := metric.NewRegistry()
	monitor := health.NewMonitor()

	st, natsClient, err := setupStore(ctx, cfg, logger, monitor)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() { _ = natsClient.Close(ctx) }()
	}

	dispatcher, err := setupDispatcher(cfg, st, natsClient, registry, logger)
	if err != nil {
		return err
	}
	monitor.RegisterProbe("dispatcher", dispatcherProbe(dispatcher, cfg))

	svc := service.New(st, dispatcher, service.WithLogger(logger))
	gw := gateway.NewGateway(cfg.HTTPAddr, svc,
		gateway.WithLogger(logger),
		gateway.WithMetricsHandler(registry.Handler()),
		gateway.WithHealthMonitor(monitor))

	return runWithSignalHandling(ctx, dispatcher, gw, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting convstreams (conversation analysis)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// setupStore selects the storage backend. Embedded mode runs fully
// in-memory without a NATS connection; otherwise conversations live in
// JetStream KV buckets.
func setupStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	monitor *health.Monitor,
) (store.Store, *natsclient.Client, error) {
	if cfg.NATS.Embedded {
		slog.Info("Using embedded in-memory store")
		monitor.RegisterProbe("store", func() health.Status {
			return health.Healthy("", "in-memory store")
		})
		return store.NewMemStore(), nil, nil
	}

	slog.Info("Connecting to NATS", "client_name", cfg.NATS.ClientName)
	natsClient, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithLogger(logger),
		natsclient.WithClientName(cfg.NATS.ClientName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects))
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.Connect(connCtx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	st, err := store.NewKVStore(ctx, natsClient)
	if err != nil {
		return nil, nil, fmt.Errorf("create KV store: %w", err)
	}

	monitor.RegisterProbe("nats", func() health.Status {
		if natsClient.IsConnected() {
			return health.Healthy("", "connected")
		}
		return health.Unhealthy("", "connection lost")
	})
	return st, natsClient, nil
}

// setupDispatcher wires pipeline, engine, callback client and worker pool.
func setupDispatcher(
	cfg *config.Config,
	st store.Store,
	natsClient *natsclient.Client,
	registry *metric.Registry,
	logger *slog.Logger,
) (*dispatch.Dispatcher, error) {
	available := []pipeline.Stage{
		stages.NewKeyword(),
		stages.NewDateExtractor(),
	}
	pl, err := pipeline.Resolve(available, cfg.Pipeline.Resolve(),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(registry))
	if err != nil {
		return nil, fmt.Errorf("resolve pipeline: %w", err)
	}
	slog.Info("Pipeline resolved", "stages", pl.Stages())

	templates := engine.NewTemplateRegistry()
	if err := templates.Register(engine.NewSearchBuilder()); err != nil {
		return nil, fmt.Errorf("register template builder: %w", err)
	}
	queries := engine.NewQueryRegistry()
	if err := queries.Register(querybuilders.NewGeneric()); err != nil {
		return nil, fmt.Errorf("register query builder: %w", err)
	}
	eng := engine.New(templates, queries, engine.WithLogger(logger))

	callbackOpts := []dispatch.CallbackOption{
		dispatch.WithCallbackLogger(logger),
		dispatch.WithMaxRetries(cfg.Callback.MaxRetries),
		dispatch.WithCallbackTimeout(cfg.Callback.Timeout),
	}
	if cfg.Callback.Proxy != "" {
		callbackOpts = append(callbackOpts, dispatch.WithProxy(cfg.Callback.Proxy))
	}
	callback, err := dispatch.NewCallbackClient(callbackOpts...)
	if err != nil {
		return nil, fmt.Errorf("create callback client: %w", err)
	}

	dispatchOpts := []dispatch.DispatcherOption{
		dispatch.WithDispatchLogger(logger),
		dispatch.WithDispatchMetrics(registry),
	}
	if natsClient != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithPublisher(natsClient))
	}

	dispatcher, err := dispatch.NewDispatcher(st, pl, eng, cfg, callback, dispatchOpts...)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	return dispatcher, nil
}

// dispatcherProbe degrades readiness when the task queue is close to
// capacity.
func dispatcherProbe(d *dispatch.Dispatcher, cfg *config.Config) health.Probe {
	return func() health.Status {
		stats := d.Stats()
		if cfg.Processing.QueueSize > 0 && stats.QueueDepth >= cfg.Processing.QueueSize {
			return health.Degraded("", "task queue full")
		}
		return health.Healthy("", fmt.Sprintf("queue depth %d", stats.QueueDepth))
	}
}

// runWithSignalHandling starts the dispatcher and gateway and blocks
// until a shutdown signal arrives.
func runWithSignalHandling(
	ctx context.Context,
	dispatcher *dispatch.Dispatcher,
	gw *gateway.Gateway,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := dispatcher.Start(signalCtx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}

	gatewayErr := make(chan error, 1)
	go func() {
		gatewayErr <- gw.Start(signalCtx)
	}()
	slog.Info("convstreams started")

	select {
	case err := <-gatewayErr:
		if err != nil {
			return fmt.Errorf("gateway: %w", err)
		}
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	// stop accepting requests first, then drain queued analyses
	if err := gw.Stop(shutdownTimeout); err != nil {
		slog.Error("Gateway shutdown failed", "error", err)
	}
	if err := dispatcher.Stop(shutdownTimeout); err != nil {
		slog.Error("Dispatcher shutdown failed", "error", err)
		return err
	}

	slog.Info("convstreams shutdown complete")
	return nil
}
