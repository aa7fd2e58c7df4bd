// Package main implements the entry point for the PetroEdge telemetry
// processor: the service that consumes raw telemetry from JetStream,
// resolves each event's mapping and rule chain, and executes the chain
// against the event.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/diazhh/petroedge-sub003/config"
	"github.com/diazhh/petroedge-sub003/consumer"
	"github.com/diazhh/petroedge-sub003/engine"
	"github.com/diazhh/petroedge-sub003/health"
	"github.com/diazhh/petroedge-sub003/metric"
	"github.com/diazhh/petroedge-sub003/natsclient"
	"github.com/diazhh/petroedge-sub003/node"
	"github.com/diazhh/petroedge-sub003/pkg/cache"
	"github.com/diazhh/petroedge-sub003/resolver"
	"github.com/diazhh/petroedge-sub003/store"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "petroedge-processor"
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
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	// Broker
	natsClient := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithLogger(logger))
	if err := natsClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = natsClient.Close(ctx) }()

	if err := natsClient.EnsureStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Consumer.Stream,
		Subjects:  []string{cfg.Consumer.Subject, cfg.DeadLetterSubject},
		Retention: jetstream.LimitsPolicy,
	}); err != nil {
		return fmt.Errorf("ensure telemetry stream: %w", err)
	}

	// Relational store
	st, err := store.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	// Cache backend
	cacheStore, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = cacheStore.Close() }()

	// Metrics
	registry := metric.NewMetricsRegistry()
	metrics := registry.Metrics

	// Processing pipeline
	mappings := resolver.NewMappingResolver(st, cacheStore, metrics)
	chains := resolver.NewChainResolver(st, cacheStore, metrics)
	registryNodes := node.NewRegistry()
	eng := engine.New(registryNodes, st, node.Dependencies{
		Publisher: natsClient,
		Logger:    logger,
	}, metrics)
	dlq := consumer.NewNATSDeadLetter(natsClient, cfg.DeadLetterSubject)
	tc := consumer.New(cfg.Consumer, natsClient, mappings, chains, eng, dlq, metrics)

	if err := tc.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	// Health and metrics endpoint
	monitor := health.NewMonitor()
	monitor.RegisterCheck("broker", func() health.Status {
		if s := natsClient.Status(); s != natsclient.StatusConnected {
			return health.Unhealthy("broker", "connection "+s.String())
		}
		return health.Healthy("broker", "connected")
	})
	monitor.RegisterCheck("store", func() health.Status {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.Ping(pingCtx); err != nil {
			return health.Unhealthy("store", err.Error())
		}
		return health.Healthy("store", "connected")
	})
	monitor.RegisterCheck("consumer", func() health.Status {
		processed, dropped := tc.Stats()
		m := &health.Metrics{MessagesProcessed: processed, MessagesDropped: dropped}
		if !tc.Running() {
			return health.Unhealthy("consumer", "not running").WithMetrics(m)
		}
		return health.Healthy("consumer", "running").WithMetrics(m)
	})

	if cfg.Metrics.Enabled {
		srv := serveHTTP(cfg.Metrics.Addr, registry, monitor, logger)
		defer shutdownHTTP(srv, logger)
	}

	logger.Info("PetroEdge processor running",
		"platform_id", cfg.Platform.ID,
		"environment", cfg.Platform.Environment,
		"stream", cfg.Consumer.Stream,
		"cache_mode", cfg.Cache.Mode)

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", "signal", sig.String())

	if err := tc.Stop(cliCfg.ShutdownTimeout); err != nil {
		logger.Warn("Consumer shutdown incomplete", "error", err)
	}
	processed, dropped := tc.Stats()
	logger.Info("Processor stopped", "processed", processed, "dropped", dropped)
	return nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Mode == "redis" {
		rs, err := cache.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = time.Minute
	}
	return cache.NewMemoryStore(sweep), nil
}

func serveHTTP(addr string, registry *metric.MetricsRegistry, monitor *health.Monitor, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/healthz", monitor.Handler(appName))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Metrics endpoint listening", "addr", addr)
	return srv
}

func shutdownHTTP(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown failed", "error", err)
	}
}
