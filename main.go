package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/postkeep-be/internal/api"
	"github.com/isdelr/postkeep-be/internal/api/handlers"
	"github.com/isdelr/postkeep-be/internal/auth"
	"github.com/isdelr/postkeep-be/internal/cache"
	"github.com/isdelr/postkeep-be/internal/config"
	"github.com/isdelr/postkeep-be/internal/logger"
	"github.com/isdelr/postkeep-be/internal/monitoring"
	"github.com/isdelr/postkeep-be/internal/services"
	"github.com/isdelr/postkeep-be/internal/storage"
	"github.com/isdelr/postkeep-be/internal/storage/mongodb"
	"github.com/isdelr/postkeep-be/internal/storage/postgres"
	"github.com/isdelr/postkeep-be/internal/storage/sqlite"
	"github.com/isdelr/postkeep-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info", "console")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up storage
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to initialize storage")
	}
	defer store.Close()

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token service")
	}

	// Set up the read cache, shared with other replicas when Redis is configured
	postCache := cache.NewPostCache(cfg.CacheTTL, cfg.CacheCapacity, nil)
	var listCache services.PostListCache = postCache
	if cfg.RedisAddr != "" {
		redisClient := cache.NewRedisClient(cfg.RedisAddr)
		defer redisClient.Close()
		broadcaster := cache.NewRedisBroadcaster(postCache, redisClient, cfg.RedisChannel)
		listCache = broadcaster
		// Listen retries until shutdown, so a Redis outage does not block startup.
		go broadcaster.Listen(ctx)
	}

	janitor, err := monitoring.NewCacheJanitor(postCache, cfg.CacheJanitorSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache janitor")
	}
	janitor.Run()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(tokens, store, store)
	userService := services.NewUserService(store, auth.NewBcryptHasher(), tokens, eventService)
	postService := services.NewPostService(tokens, store, store, listCache, eventService, hub, cfg.StrictDelete)

	// Set up router
	router := api.NewRouter(hub, tokens, userService, postService, eventService,
		handlers.NewHealthHandler(store, postCache),
		api.Options{
			AllowedOrigins:  cfg.AllowedOrigins,
			MaxRequestBytes: cfg.MaxRequestBytes,
			TokenTTL:        tokens.TTL(),
			SecureCookies:   cfg.IsProduction(),
		})

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("driver", cfg.StorageDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	janitor.Stop()
	hub.Stop()

	log.Info().Msg("Server exiting")
}

// openStore connects the storage driver named in cfg.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		return postgres.Open(connectCtx, cfg.PostgresDSN)
	case config.DriverMongo:
		return mongodb.Open(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return sqlite.Open(cfg.DatabasePath)
	}
}
