// Package main implements the entry point for the contextrules service.
// Contextrules consumes sensor change notifications, evaluates threshold
// log rules against the reported values, and forwards the results to the
// alarm-evaluation and history-log stages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/contextrules/component"
	"github.com/c360/contextrules/config"
	"github.com/c360/contextrules/contextstore"
	"github.com/c360/contextrules/metric"
	"github.com/c360/contextrules/natsclient"
	"github.com/c360/contextrules/processor/logrule"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "contextrules"
)

func main() {
	// Add panic recovery
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

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	natsClient, err := connectToNATS(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = natsClient.Close(ctx) }()

	store, err := contextstore.NewHTTPStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("create store client: %w", err)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	if natsClient.IsHealthy() {
		metricsRegistry.CoreMetrics().NATSConnected.Set(1)
	}

	manager, err := assemblePipeline(cfg, natsClient, store, metricsRegistry, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, manager, cliCfg.ShutdownTimeout)
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

	slog.Info("Starting contextrules (log rule evaluation)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// connectToNATS creates the client, establishes the connection, and waits
// for it to be ready.
func connectToNATS(ctx context.Context, cfg *config.Config) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithUserCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	natsClient, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS", "url", cfg.NATS.URL)
	if err := natsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return natsClient, nil
}

// assemblePipeline registers the managed components: metrics endpoint, the
// JetStream processor, and the optional core-NATS subscriber.
func assemblePipeline(
	cfg *config.Config,
	natsClient *natsclient.Client,
	store contextstore.Store,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*component.Manager, error) {
	procCfg, err := processorConfig(cfg)
	if err != nil {
		return nil, err
	}

	manager := component.NewManager(logger)

	if cfg.Service.MetricsAddr != "" {
		manager.Register(metric.NewServer(cfg.Service.MetricsAddr, metricsRegistry))
	}

	// Both transport adapters record into one shared metrics set; registering
	// the collectors twice would be rejected by the registry.
	metrics, err := logrule.NewMetrics(metricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("register pipeline metrics: %w", err)
	}

	manager.Register(logrule.NewProcessorWithMetrics(natsClient, store, procCfg, metrics))

	if procCfg.BusSubject != "" {
		manager.Register(logrule.NewSubscriberWithMetrics(natsClient, store, procCfg, metrics))
	}

	return manager, nil
}

// processorConfig decodes the processor section of the service config,
// falling back to defaults when absent.
func processorConfig(cfg *config.Config) (*logrule.Config, error) {
	procCfg := logrule.DefaultConfig()
	if len(cfg.Processor) > 0 {
		if err := json.Unmarshal(cfg.Processor, &procCfg); err != nil {
			return nil, fmt.Errorf("decode processor config: %w", err)
		}
	}
	if err := procCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}
	return &procCfg, nil
}

// runWithSignalHandling starts components and handles shutdown signals
func runWithSignalHandling(ctx context.Context, manager *component.Manager, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.Start(signalCtx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	slog.Info("Contextrules started successfully (rule evaluation ready)")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := manager.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Contextrules shutdown complete")
	return nil
}
