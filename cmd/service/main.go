package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/huanchen1107/TawinCWA/internal/archive"
	"github.com/huanchen1107/TawinCWA/internal/cache"
	"github.com/huanchen1107/TawinCWA/internal/catalog"
	"github.com/huanchen1107/TawinCWA/internal/client"
	"github.com/huanchen1107/TawinCWA/internal/config"
	"github.com/huanchen1107/TawinCWA/internal/health"
	httphandler "github.com/huanchen1107/TawinCWA/internal/http"
	"github.com/huanchen1107/TawinCWA/internal/observability"
	"github.com/huanchen1107/TawinCWA/internal/scheduler"
	"github.com/huanchen1107/TawinCWA/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	resilience := client.ResilienceConfig{
		MaxRetries:         cfg.RetryMaxAttempts,
		InitialInterval:    cfg.RetryInitialInterval,
		MaxInterval:        cfg.RetryMaxInterval,
		BreakerMaxFailures: uint32(cfg.BreakerMaxFailures),
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}

	cwaClient, err := client.NewCWAClient(cfg.CWAAPIKey, cfg.CWABaseURL, cfg.UpstreamTimeout)
	if err != nil {
		logger.Fatal("cwa client", zap.Error(err))
	}
	clients := map[string]client.SourceClient{
		"cwa":     client.WithResilience(cwaClient, "cwa", resilience),
		"datagov": client.WithResilience(client.NewDataGovClient(cfg.DataGovBaseURL, cfg.UpstreamTimeout), "datagov", resilience),
		"census":  client.WithResilience(client.NewCensusClient(cfg.CensusAPIKey, cfg.CensusBaseURL, cfg.UpstreamTimeout), "census", resilience),
	}

	// A failed startup probe is worth a warning, not an exit: the stale cache
	// and the other providers keep serving.
	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout)
	if err := cwaClient.Ping(pingCtx); err != nil {
		logger.Warn("cwa upstream unreachable at startup", zap.Error(err))
	}
	pingCancel()

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.MaxStaleAge, clock)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(cfg.CacheMaxEntries, clock)
		logger.Info("cache backend: in_memory", zap.Int("max_entries", cfg.CacheMaxEntries))
	}

	store := cache.NewStore(clients, cacheSvc, cache.StoreConfig{
		MaxStaleAge:     cfg.MaxStaleAge,
		CoalesceTimeout: cfg.CoalesceTimeout,
	}, clock, logger)

	var recorder service.Recorder
	var archiveCloser *archive.Archive
	if cfg.ArchivePath != "" {
		arc, err := archive.Open(cfg.ArchivePath, clock, logger)
		if err != nil {
			logger.Fatal("archive", zap.Error(err))
		}
		archiveCloser = arc
		recorder = arc
		logger.Info("archive opened", zap.String("path", cfg.ArchivePath))

		if deleted, err := arc.Cleanup(context.Background(), cfg.ArchiveRetention); err != nil {
			logger.Warn("archive cleanup", zap.Error(err))
		} else if deleted > 0 {
			logger.Info("archive cleanup", zap.Int64("deleted", deleted))
		}
	}

	ttls := map[catalog.Category]time.Duration{
		catalog.CategoryForecast:    cfg.ForecastTTL,
		catalog.CategoryObservation: cfg.ObservationTTL,
		catalog.CategoryEarthquake:  cfg.EarthquakeTTL,
		catalog.CategoryStatistical: cfg.StatisticalTTL,
	}
	dataService := service.NewDataService(store, recorder, cfg.Thresholds, ttls, logger)

	tracker := health.NewTracker(clock)
	checker := health.NewChecker(tracker, clients, time.Minute, 50)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(dataService, checker, tracker, logger)

	var refresher *scheduler.Scheduler
	if cfg.RefreshEnabled && len(cfg.RefreshDatasets) > 0 {
		refresher = scheduler.New(cfg.RefreshDatasets, dataService, ttls, logger)
		if err := refresher.Start(); err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter, tracker))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/catalog", handler.GetCatalog).Methods("GET")
	api.HandleFunc("/alerts", handler.GetRecentAlerts).Methods("GET")
	api.HandleFunc("/data/{provider}/{dataset:.+}", handler.GetData).Methods("GET")
	api.HandleFunc("/alerts/{provider}/{dataset:.+}", handler.GetDatasetAlerts).Methods("GET")
	api.HandleFunc("/export/{provider}/{dataset:.+}", handler.GetExport).Methods("GET")
	api.HandleFunc("/history/{provider}/{dataset:.+}", handler.GetHistory).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	if refresher != nil {
		refresher.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	if inFlight > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		waitCancel()
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if archiveCloser != nil {
		if err := archiveCloser.Close(); err != nil {
			logger.Error("archive close", zap.Error(err))
		}
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
