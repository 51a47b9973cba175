package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/model-graveyard/internal/api"
	"github.com/miradorstack/model-graveyard/internal/cache"
	"github.com/miradorstack/model-graveyard/internal/config"
	"github.com/miradorstack/model-graveyard/internal/engine"
	"github.com/miradorstack/model-graveyard/internal/metrics"
	"github.com/miradorstack/model-graveyard/internal/repo"
	"github.com/miradorstack/model-graveyard/internal/services"
	"github.com/miradorstack/model-graveyard/internal/utils"
)

func main() {
	var (
		configPath string
		serve      bool
		simulate   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&serve, "serve", false, "Serve the dashboard API instead of running a single probe pass")
	flag.BoolVar(&simulate, "simulate", false, "Use simulated probes")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}
	if simulate {
		cfg.Probe.Simulate = true
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if serve {
		cacheProvider = cache.NewMemoryProvider()
	}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(ctx, cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	store := repo.NewSnapshotStore(cfg.Data.Dir, cacheProvider, cfg.Cache.SnapshotTTL, logger)
	prober := engine.NewProber(engine.ProberConfig{
		Command: cfg.Probe.Command,
		Prompt:  cfg.Probe.Prompt,
		Timeout: cfg.Probe.Timeout,
	}, engine.ExecRunner{}, logger)
	orchestrator := engine.NewOrchestrator(prober, cfg.Probe.Concurrency, logger, metrics.ProbeObserver{})
	opts := services.Options{
		RosterPath:   cfg.Roster.Path,
		RosterSource: cfg.Roster.SourcePath,
		Simulate:     cfg.Probe.Simulate,
		Seed:         cfg.Probe.Seed,
	}

	if !serve {
		svc := services.NewGraveyardService(opts, logger, prober, orchestrator, store, nil)
		if err := runOnce(ctx, svc, store, cfg.Probe.Simulate); err != nil {
			logger.Error("probe run failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := runServer(ctx, stop, cfg, logger, opts, prober, orchestrator, store); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, svc *services.GraveyardService, store *repo.SnapshotStore, simulate bool) error {
	if simulate {
		fmt.Println("Using simulated probes")
	} else {
		fmt.Println("Using real probes")
	}
	snapshot, err := svc.Refresh(ctx, simulate)
	if err != nil {
		return err
	}
	c := snapshot.Counts()
	fmt.Printf("Generated %d items -> %s | OK=%d WARN=%d ERROR=%d CRITICAL=%d INVALID_CONFIG=%d\n",
		c.Total, store.StatusPath(), c.OK, c.Warn, c.Error, c.Critical, c.InvalidConfig)
	return nil
}

func runServer(
	ctx context.Context,
	stop context.CancelFunc,
	cfg *config.Config,
	logger *slog.Logger,
	opts services.Options,
	prober engine.Probe,
	orchestrator *engine.Orchestrator,
	store *repo.SnapshotStore,
) error {
	grpcServer, err := api.NewGRPCServer(cfg.Server)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}

	svc := services.NewGraveyardService(opts, logger, prober, orchestrator, store, grpcServer)
	if err := svc.EnsureSnapshot(ctx); err != nil {
		logger.Warn("initial snapshot unavailable", slog.Any("error", err))
	}
	if snapshot, err := svc.Status(ctx); err == nil {
		grpcServer.Publish(snapshot.Items)
		metrics.ObserveSnapshot(snapshot)
	}

	handler := api.RegisterRoutes(http.NewServeMux(), api.NewHandler(svc, logger, cfg.Roster.Path), api.StaticDirs{
		Frontend: cfg.Server.FrontendDir,
		Data:     cfg.Data.Dir,
		Images:   cfg.Server.ImagesDir,
	})
	httpServer := api.NewHTTPServer(cfg.Server.Address, handler, logger)

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
		logger.Info("gRPC health server listening", slog.String("address", grpcServer.Address()))
		if serveErr := grpcServer.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		logger.Info("serving dashboard",
			slog.String("address", cfg.Server.Address),
			slog.String("frontend", absPath(cfg.Server.FrontendDir)),
			slog.String("data", absPath(cfg.Data.Dir)),
			slog.String("roster", absPath(cfg.Roster.Path)),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grpcServer.GracefulTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	grpcServer.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("model-graveyard stopped")
	return nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
