// Package main implements the vector command: it loads a pipeline configuration, runs
// the topology and shuts it down gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Tomwslape5638/vector/component"
	"github.com/Tomwslape5638/vector/componentregistry"
	"github.com/Tomwslape5638/vector/config"
	"github.com/Tomwslape5638/vector/health"
	"github.com/Tomwslape5638/vector/metric"
	"github.com/Tomwslape5638/vector/topology"
)

// Build information, set with -ldflags
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "vector"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args, stdout, stderr)
	if shouldExit || err != nil {
		return err
	}

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	logger.Debug("Component types registered", "types", registry.ListComponentTypes())

	if cliCfg.Command == "generate" {
		return generate(stdout, registry, cliCfg.Args)
	}

	cfg, err := initializeConfiguration(cliCfg, registry)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid",
			"sources", len(cfg.Sources), "sinks", len(cfg.Sinks), "buffer", cfg.Buffer.Type)
		return nil
	}

	return runWithSignalHandling(context.Background(), cliCfg, cfg, registry, logger)
}

// initializeCLI parses flags and installs the default logger. shouldExit is true when the
// invocation only asked for help or the version.
func initializeCLI(args []string, stdout, stderr io.Writer) (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, err := parseFlags(args, stderr)
	if stderrors.Is(err, pflag.ErrHelp) {
		return nil, nil, true, nil
	}
	if err != nil {
		return nil, nil, true, err
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s %s (build %s, %s)\n", appName, Version, BuildTime, runtime.Version())
		return cliCfg, nil, true, nil
	}

	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, true, fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, stderr)
	slog.SetDefault(logger)

	if cliCfg.Command == "" {
		logger.Info("Starting vector",
			"version", Version,
			"config", cliCfg.ConfigPaths,
			"log_level", cliCfg.LogLevel)
	}

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads every config layer and checks the component types
func initializeConfiguration(cliCfg *CLIConfig, registry *component.Registry) (*config.Config, error) {
	loader := config.NewLoader()
	for _, path := range cliCfg.ConfigPaths {
		loader.AddLayer(path)
	}
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateTypes(registry); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.Debug("Configuration loaded",
		"layers", len(cliCfg.ConfigPaths),
		"sources", len(cfg.Sources),
		"sinks", len(cfg.Sinks))
	return cfg, nil
}

// runWithSignalHandling starts the topology and stops it on a signal or when a component
// fails
func runWithSignalHandling(
	ctx context.Context,
	cliCfg *CLIConfig,
	cfg *config.Config,
	registry *component.Registry,
	logger *slog.Logger,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	metricsRegistry := metric.NewMetricsRegistry()
	deps := component.Dependencies{
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	}

	var opts []topology.Option
	if cliCfg.RequireHealthy != nil {
		opts = append(opts, topology.WithRequireHealthy(*cliCfg.RequireHealthy))
	}

	topo, err := topology.Build(cfg, registry, deps, opts...)
	if err != nil {
		return fmt.Errorf("build topology: %w", err)
	}

	server := startServer(cliCfg.HealthAddr, metricsRegistry, topo)

	if err := topo.Start(signalCtx); err != nil {
		topo.Stop(time.Now().Add(shutdownTimeout(cliCfg, cfg)))
		stopServer(server)
		return fmt.Errorf("start topology: %w", err)
	}
	logger.Info("Vector started", "topology", topo.ID())

	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	case <-topo.Failed():
		runErr = topo.Wait()
		logger.Error("Component failed, shutting down", "error", runErr)
	}

	timeout := shutdownTimeout(cliCfg, cfg)
	if !topo.Stop(time.Now().Add(timeout)) {
		logger.Warn("Shutdown did not complete in time", "timeout", timeout)
	}
	stopServer(server)

	if runErr != nil {
		return fmt.Errorf("topology failed: %w", runErr)
	}
	if err := topo.Wait(); err != nil {
		return fmt.Errorf("topology failed: %w", err)
	}

	logger.Info("Vector shutdown complete")
	return nil
}

func shutdownTimeout(cliCfg *CLIConfig, cfg *config.Config) time.Duration {
	if cliCfg.ShutdownTimeout > 0 {
		return cliCfg.ShutdownTimeout
	}
	return cfg.Shutdown.Timeout()
}

// startServer serves metrics and topology health in the background; a failing listener is
// logged and does not stop the pipeline
func startServer(addr string, registry *metric.MetricsRegistry, topo *topology.Topology) *metric.Server {
	if addr == "" {
		return nil
	}
	server := metric.NewServer(addr, registry, health.Handler(topo.Health))
	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("Serving metrics and health", "addr", addr)
	return server
}

func stopServer(server *metric.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		slog.Warn("Metrics server did not stop cleanly", "error", err)
	}
}
