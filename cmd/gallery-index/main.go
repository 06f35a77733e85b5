package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"gallery-index/internal/cache"
	"gallery-index/internal/database"
	"gallery-index/internal/gallery"
	"gallery-index/internal/handlers"
	"gallery-index/internal/indexer"
	"gallery-index/internal/logging"
	"gallery-index/internal/media"
	"gallery-index/internal/memory"
	"gallery-index/internal/metrics"
	"gallery-index/internal/middleware"
	"gallery-index/internal/remote"
	"gallery-index/internal/startup"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
)

// app holds everything main starts and must stop.
type app struct {
	db        *database.Database
	cache     *cache.Cache
	idx       *indexer.Indexer
	limiter   *middleware.RateLimiter
	collector *metrics.Collector
	server    *http.Server
	metrics   *http.Server
	vips      bool

	shutdownOnce sync.Once
	done         chan struct{}
}

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv(os.Getenv)

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	a, err := newApp(config)
	if err != nil {
		startup.LogFatal("%v", err)
	}

	go a.handleShutdown()

	if a.metrics != nil {
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := a.serve(); err != nil {
		startup.LogFatal("Server error: %v", err)
	}
}

// serve runs the HTTP server and, once it has been shut down, waits for the
// rest of the shutdown sequence to finish.
func (a *app) serve() error {
	if err := a.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-a.done
	return nil
}

func newApp(config *startup.Config) (*app, error) {
	a := &app{done: make(chan struct{})}

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	populated, err := db.IsPopulated(context.Background())
	if err != nil {
		logging.Warn("Failed to read sync marker: %v", err)
	}
	startup.LogDatabaseInit(config.DatabasePath, time.Since(dbStart), populated)

	store, err := newStore(config.Remote)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	codec := media.NewCodec(config.VipsEnabled)
	a.vips = codec.Name() == "vips"
	startup.LogCodecInit(codec.Name(), codec.Available())

	a.cache = cache.New(cache.Config{
		MaxEntries:      config.Cache.MaxEntries,
		CleanupInterval: config.Cache.CleanupInterval,
	})
	a.cache.Start()

	ttls := config.Cache.TTLs()
	svc := gallery.NewService(db, store, a.cache, ttls)
	inv := gallery.NewInvalidator(config.WebhookSecret, a.cache, db)
	variants := gallery.NewVariantCache(store, codec, a.cache, ttls.Images)

	var syncStatus handlers.SyncStatus
	startup.LogIndexerInit(config.Sync.Enabled, config.Sync.Interval)
	if config.Sync.Enabled {
		a.idx = indexer.New(db, store, config.Sync.Interval)
		parallel := indexer.DefaultParallelConfig()
		parallel.ExtractMetadata = config.Sync.ExtractMetadata
		a.idx.SetParallelConfig(parallel)
		if err := a.idx.Start(); err != nil {
			a.cache.Stop()
			_ = db.Close()
			return nil, fmt.Errorf("failed to start sync job: %w", err)
		}
		startup.LogIndexerStarted()
		a.idx.SetOnIndexComplete(func() {
			// Entries cached while the index was empty or stale.
			a.cache.InvalidateAll()
		})
		syncStatus = a.idx
	}

	metrics.InitializeMetrics()
	build := startup.GetBuildInfo()
	metrics.SetAppInfo(build.Version, build.Commit, build.GoVersion)
	a.collector = metrics.NewCollector(db, config.DatabasePath, collectorInterval)
	a.collector.Start()

	h := handlers.New(svc, variants, inv, syncStatus, db)
	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	limitConfig := middleware.DefaultRateLimitConfig()
	limitConfig.Enabled = config.RateLimit.Enabled
	limitConfig.Requests = config.RateLimit.Requests
	limitConfig.Window = config.RateLimit.Window
	a.limiter = middleware.NewRateLimiter(limitConfig)
	a.limiter.Start()

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks

	var handler http.Handler = router
	handler = a.limiter.Middleware(handler)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.RequestID(handler)

	a.server = &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Image bodies extend their own write deadline per chunk.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	if config.MetricsEnabled {
		a.metrics = newMetricsServer(config.MetricsPort, h)
	}

	return a, nil
}

func newStore(config startup.RemoteConfig) (remote.Store, error) {
	switch config.Backend {
	case startup.BackendLocal:
		store, err := remote.NewLocal(config.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open gallery directory: %w", err)
		}
		startup.LogRemoteInit(config.Backend, config.LocalDir)
		return store, nil
	default:
		store := remote.NewGraph(remote.GraphConfig{
			TenantID:     config.TenantID,
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			SiteID:       config.SiteID,
			DriveID:      config.DriveID,
			RootFolderID: config.GalleryFolderID,
			Timeout:      config.Timeout,
		})
		startup.LogRemoteInit(config.Backend, "sites/"+config.SiteID+"/drives/"+config.DriveID+"/items/"+config.GalleryFolderID)
		return store, nil
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	h.RegisterRoutes(router)
	return router
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", h.MetricsHandler())
	metricsMux.HandleFunc("/health", h.LivenessCheck)

	return &http.Server{
		Addr:              ":" + port,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}

func (a *app) handleShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	a.shutdown()
}

// shutdown stops everything in reverse order of startup. Only the first call
// does anything; done is closed when it returns.
func (a *app) shutdown() {
	a.shutdownOnce.Do(a.stop)
}

func (a *app) stop() {
	defer close(a.done)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	if a.idx != nil {
		startup.LogShutdownStep("Stopping sync job")
		a.idx.Stop()
		startup.LogShutdownStepComplete("Sync job stopped")
	}

	a.limiter.Stop()
	a.collector.Stop()
	a.cache.Stop()

	startup.LogShutdownStep("Closing database")
	if err := a.db.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	if a.vips {
		media.ShutdownVips()
	}

	startup.LogShutdownComplete()
}
