// Package main implements the entry point for the configuration manager
// daemon. The daemon owns the canonical configuration document of a
// running system: modules register their specifications with it, clients
// read and change configuration through it, and accepted changes are
// distributed to the affected modules atomically.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yodamaster/bundy/busclient"
	"github.com/yodamaster/bundy/cfgmgr"
	"github.com/yodamaster/bundy/health"
	"github.com/yodamaster/bundy/logconfig"
	"github.com/yodamaster/bundy/metric"
	"github.com/yodamaster/bundy/registry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "bundy-cfgmgr"
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
		slog.Error("Configuration manager failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger, levelVar, buffered := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting configuration manager",
		"version", Version,
		"build_time", BuildTime,
		"data_path", cliCfg.DataPath,
		"config_file", cliCfg.ConfigFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connectBus(ctx, cliCfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			slog.Warn("Error closing bus client", "error", err)
		}
	}()

	metricsRegistry := metric.NewRegistry()

	monitor := health.NewMonitor()
	monitor.Register("bus", func() health.Status {
		if client.IsHealthy() {
			return health.NewHealthy("bus", client.Status().String())
		}
		return health.NewUnhealthy("bus", client.Status().String())
	})

	coordinator, err := setupCoordinator(cliCfg, client, metricsRegistry,
		logconfig.New(levelVar, buffered, logger), logger)
	if err != nil {
		return err
	}

	return serve(ctx, coordinator, metricsRegistry, monitor, cliCfg.MetricsPort)
}

// connectBus creates and connects the bus client.
func connectBus(ctx context.Context, cliCfg *CLIConfig) (*busclient.Client, error) {
	slog.Info("Connecting to message bus", "url", cliCfg.BusURL)
	client, err := busclient.NewClient(cliCfg.BusURL, busclient.WithName(appName))
	if err != nil {
		return nil, fmt.Errorf("create bus client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to message bus: %w", err)
	}
	return client, nil
}

// setupCoordinator builds the coordinator, registers the built-in Logging
// virtual module, and loads the persisted document.
func setupCoordinator(
	cliCfg *CLIConfig,
	client *busclient.Client,
	metricsRegistry *metric.Registry,
	logHandler *logconfig.Handler,
	logger *slog.Logger,
) (*cfgmgr.Coordinator, error) {
	coordinator, err := cfgmgr.New(cliCfg.DataPath, cliCfg.ConfigFile, client,
		cfgmgr.WithLogger(logger),
		cfgmgr.WithMetrics(metricsRegistry),
		cfgmgr.WithLoggingHandler(logHandler),
		cfgmgr.WithModuleTimeout(cliCfg.ModuleTimeout))
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	loggingSpec, err := registry.ParseModuleSpec(logconfig.ModuleSpec())
	if err != nil {
		return nil, fmt.Errorf("parse logging module spec: %w", err)
	}
	coordinator.Registry().RegisterVirtual(loggingSpec, logconfig.Validate)

	if cliCfg.ClearConfig {
		slog.Info("Clearing existing configuration", "config_file", cliCfg.ConfigFile)
		if err := coordinator.ClearConfig(); err != nil {
			return nil, fmt.Errorf("clear configuration: %w", err)
		}
	}

	if err := coordinator.ReadConfig(); err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	return coordinator, nil
}

// serve runs the coordinator loop and the HTTP endpoints until shutdown.
func serve(ctx context.Context, coordinator *cfgmgr.Coordinator, metricsRegistry *metric.Registry, monitor *health.Monitor, metricsPort int) error {
	if err := coordinator.Subscribe(); err != nil {
		return fmt.Errorf("subscribe to command groups: %w", err)
	}
	coordinator.NotifyInit()
	slog.Info("Configuration manager started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		err := coordinator.Run(gCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return serveHTTP(gCtx, metricsPort, metricsRegistry, monitor)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Configuration manager shutdown complete")
	return nil
}

// serveHTTP exposes the Prometheus and health endpoints until ctx is
// done. A port of 0 disables them.
func serveHTTP(ctx context.Context, port int, metricsRegistry *metric.Registry, monitor *health.Monitor) error {
	if port == 0 {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRegistry.Handler())
	mux.Handle("/healthz", monitor.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Metrics and health endpoints listening", "port", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
