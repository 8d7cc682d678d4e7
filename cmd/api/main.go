package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propscan-api/internal/cache"
	"propscan-api/internal/config"
	"propscan-api/internal/events"
	"propscan-api/internal/handler"
	"propscan-api/internal/history"
	"propscan-api/internal/kv"
	"propscan-api/internal/logger"
	"propscan-api/internal/middleware"
	"propscan-api/internal/model"
	"propscan-api/internal/repository"
	"propscan-api/internal/router"
	"propscan-api/internal/scan"
	"propscan-api/internal/service"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Debug:  cfg.Log.Debug,
		Output: cfg.Log.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log config: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("main")
	log.Info().Str("env", cfg.App.Environment).Str("version", cfg.App.Version).Msg("Starting propscan API")

	// Initialize property and scan record stores based on config
	stores, err := repository.Open(cfg.PropertyDB)
	if err != nil {
		log.Fatal().Err(err).Str("type", cfg.PropertyDB.Type).Msg("Failed to initialize property store")
	}
	defer stores.Close()
	log.Info().Str("type", cfg.PropertyDB.Type).Msg("Property store initialized")

	// Initialize Redis client (optional)
	var redisClient *redis.Client
	if cfg.Cache.RedisEnabled || cfg.Cache.Type == "redis" || cfg.Storage.Type == "redis" {
		redisClient, err = cache.NewRedisClient(cfg.Cache.RedisAddress(), cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddress()).Msg("Redis connection failed")
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Info().Msg("Redis client initialized")
		}
	}

	// Key-value store for history, hand-off slot and offline queue
	var kvStore kv.Store
	switch {
	case cfg.Storage.Type == "redis" && redisClient != nil:
		kvStore = kv.NewRedisStore(redisClient, cfg.Storage.KeyPrefix)
	case cfg.Storage.Type == "memory":
		kvStore = kv.NewMemoryStore()
	default:
		if cfg.Storage.Type == "redis" {
			log.Warn().Msg("Redis unavailable, falling back to SQLite key-value store")
		}
		sqliteKV, err := kv.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize key-value store")
		}
		defer sqliteKV.Close()
		kvStore = sqliteKV
	}

	// Scan record sinks: write-behind buffer when Redis is up, direct insert otherwise
	var sinks []history.Sink
	var scanBuffer *cache.RedisScanBuffer
	if redisClient != nil {
		scanBuffer = cache.NewRedisScanBuffer(redisClient, "propscan:scan_records", cfg.Cache.BufferFlushInterval, stores.ScanRecords.BatchInsert)
		scanBuffer.Start()
		sinks = append(sinks, scanBuffer)
		log.Info().Dur("flush_interval", cfg.Cache.BufferFlushInterval).Msg("Redis scan buffer initialized")
	} else {
		sinks = append(sinks, history.SinkFunc(func(ctx context.Context, rec model.ScanRecord) error {
			return stores.ScanRecords.BatchInsert(ctx, []model.ScanRecord{rec})
		}))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		natsPub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject, cfg.App.Name)
		if err != nil {
			log.Warn().Err(err).Msg("Scan events disabled")
		} else {
			publisher = natsPub
			sinks = append(sinks, natsPub)
		}
	}

	// Property cache
	var propertyCache cache.Cache
	if cfg.Cache.Type == "redis" && redisClient != nil {
		propertyCache = cache.NewRedisCache(redisClient, "propscan:cache")
	} else {
		propertyCache = cache.NewMemoryCache(time.Minute)
	}
	defer propertyCache.Close()

	// Initialize services
	hist := history.NewStore(kvStore, cfg.Scan.HistoryMax, sinks...)
	policy := scan.NewPolicy(scan.FromSettings(cfg.Scan))
	scanService := service.NewScanService(policy, hist, scan.NewRouter(kvStore))
	propertyService := service.NewPropertyService(stores.Properties, propertyCache, cfg.Cache.TTL)
	offlineQueue := service.NewOfflineQueue(kvStore, propertyService)

	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient, cfg.Auth.TokenTTL)
	}

	retention := service.NewRetentionScheduler(stores.ScanRecords, service.RetentionConfig{
		MaxAge:   cfg.Retention.MaxAge,
		Interval: cfg.Retention.Interval,
	})
	retention.Start()

	// Initialize handlers
	checks := []handler.ReadinessCheck{{
		Name: "property_store",
		Check: func(ctx context.Context) error {
			_, err := stores.Properties.GetStats(ctx)
			return err
		},
	}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	var pending handler.PendingCounter
	if scanBuffer != nil {
		pending = scanBuffer
	}

	apiKeys := cfg.Auth.Keys()
	if len(apiKeys) == 0 {
		log.Warn().Msg("API_KEYS is empty, authentication is disabled")
	}

	// Create auth middleware with injected dependencies
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		TokenService: tokenService,
		APIKeys:      apiKeys,
	})

	// Create router
	r := router.New(router.Config{
		Handler:         handler.New(cfg.App.Name, cfg.App.Version, checks...),
		AuthHandler:     handler.NewAuthHandler(tokenService),
		ScanHandler:     handler.NewScanHandler(scanService, cfg.Server.MaxUploadBytes),
		RecordsHandler:  handler.NewRecordsHandler(stores.ScanRecords),
		PropertyHandler: handler.NewPropertyHandler(propertyService),
		OfflineHandler:  handler.NewOfflineHandler(offlineQueue),
		AdminHandler:    handler.NewAdminHandler(pending, propertyService, hist, cfg.PropertyDB.Type),
		AuthMiddleware:  authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	retention.Stop()

	// Close the scan buffer after the server so in-flight scans are flushed
	if scanBuffer != nil {
		log.Info().Msg("Closing scan buffer...")
		if err := scanBuffer.Close(); err != nil {
			log.Error().Err(err).Msg("Scan buffer flush failed")
		}
	}
	if err := publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to drain event publisher")
	}

	log.Info().Msg("Server stopped")
}
