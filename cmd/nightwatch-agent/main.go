package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nightwatchhq/nightwatch-agent/internal/ai"
	"github.com/nightwatchhq/nightwatch-agent/internal/api"
	"github.com/nightwatchhq/nightwatch-agent/internal/cache"
	"github.com/nightwatchhq/nightwatch-agent/internal/casestore"
	"github.com/nightwatchhq/nightwatch-agent/internal/config"
	"github.com/nightwatchhq/nightwatch-agent/internal/controlplane"
	"github.com/nightwatchhq/nightwatch-agent/internal/detect"
	"github.com/nightwatchhq/nightwatch-agent/internal/engine"
	"github.com/nightwatchhq/nightwatch-agent/internal/events"
	"github.com/nightwatchhq/nightwatch-agent/internal/metrics"
	"github.com/nightwatchhq/nightwatch-agent/internal/models"
	"github.com/nightwatchhq/nightwatch-agent/internal/monitor"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo/memory"
	"github.com/nightwatchhq/nightwatch-agent/internal/repo/postgres"
	"github.com/nightwatchhq/nightwatch-agent/internal/services"
	"github.com/nightwatchhq/nightwatch-agent/internal/tasks"
	"github.com/nightwatchhq/nightwatch-agent/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting nightwatch-agent", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	if err := seedTargets(ctx, store, cfg.Targets); err != nil {
		logger.Error("failed to register targets", slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := ai.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialise AI provider", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("AI provider ready", slog.String("provider", provider.Name()))

	hub := events.NewHub(logger)
	cases := casestore.New(store.Incidents, provider, cacheProvider, logger, casestore.Options{
		EmbeddingDims: cfg.AI.EmbeddingDims,
		Limit:         cfg.Actions.SimilarCases,
		CacheTTL:      cfg.Cache.SimilarCasesTTL,
	})

	cpClient := controlplane.NewClient(cfg.ControlPlane.BaseURL, cfg.ControlPlane.APIKey, cfg.ControlPlane.Timeout)
	if cpClient.Simulated() {
		logger.Warn("control plane not configured, remediation actions are simulated")
	}

	executor := engine.NewExecutor(store, cpClient, hub, logger, cfg.Actions.ResolveOnFailure)
	analyzer := engine.NewAnalyzer(store, cases, provider, executor, hub, logger, cfg.Actions, cfg.AI.Timeout)
	analyzer.Start(ctx)

	detector := detect.NewDetector(detect.Thresholds{
		CPUPercent:        cfg.Monitor.Thresholds.CPUPercent,
		MemoryPercent:     cfg.Monitor.Thresholds.MemoryPercent,
		ActiveConnections: cfg.Monitor.Thresholds.ActiveConnections,
		SlowQueries:       cfg.Monitor.Thresholds.SlowQueries,
	})
	loop := monitor.NewLoop(store, monitor.NewSimulatedCollector(), detector, analyzer, hub, logger,
		cfg.Monitor.Interval, cfg.Monitor.MaxConcurrent)
	go loop.Run(ctx)

	taskRunner := tasks.NewRunner(store, hub, logger, cfg.Tasks)
	taskRunner.Start(ctx)

	queries := services.NewQueryService(store, cacheProvider, hub, logger, cfg.Cache.SummaryTTL)
	handlers := api.NewHandlers(queries, hub, logger)
	server, err := api.NewServer(cfg.Server, handlers, logger)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	analyzer.Wait()
	taskRunner.Wait()

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("nightwatch-agent stopped")
}

// openStore selects Postgres when a DSN is configured and the in-memory
// store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*repo.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database configured, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	if cfg.Database.MigrationsPath != "" {
		if err := postgres.Migrate(cfg.Database.DSN, cfg.Database.MigrationsPath); err != nil {
			return nil, nil, err
		}
	}
	pool, err := postgres.Connect(ctx, cfg.Database, 5, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to postgres")
	return postgres.NewStore(pool), pool.Close, nil
}

// seedTargets registers the configured database names. Creation is
// idempotent so restarts do not duplicate targets.
func seedTargets(ctx context.Context, store *repo.Store, names []string) error {
	for _, name := range names {
		if _, err := store.Targets.FindByName(ctx, name); err == nil {
			continue
		}
		target := &models.Target{Name: name, Status: models.StatusHealthy}
		if err := store.Targets.Create(ctx, target); err != nil {
			return err
		}
	}
	return nil
}
