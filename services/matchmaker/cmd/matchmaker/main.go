package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"pawmatch/internal/ratelimit"
	"pawmatch/internal/usertoken"
	"pawmatch/internal/util"
	"pawmatch/pkg/cache"
	"pawmatch/pkg/queue"
	"pawmatch/pkg/storage"
	"pawmatch/services/matchmaker/internal/app"
	"pawmatch/services/matchmaker/internal/config"
	"pawmatch/services/matchmaker/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	// One client backs the deck cache, the resize queue and the rate
	// limiters; go-redis pools connections internally.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.AuthTokenSecret,
		Issuer:   cfg.AuthTokenIssuer,
		Audience: cfg.AuthTokenAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	resizeQueue, err := queue.NewResizeQueue(queue.Config{
		Client: redisClient,
		Stream: cfg.ResizeStream,
	})
	if err != nil {
		log.Fatalf("failed to init resize queue: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:           cfg.DatabaseURL,
		Decks:                 cache.NewRedisDeckCache(redisClient, time.Duration(cfg.DeckTTLSeconds)*time.Second),
		Resizer:               resizeQueue,
		Objects:               objects,
		DeckMinSize:           cfg.DeckMinSize,
		DeckMaxSize:           cfg.DeckMaxSize,
		MatchRequireAvailable: cfg.MatchRequireAvailable,
		ThumbnailTag:          cfg.ThumbnailTag,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	swipeLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "pawmatch:ratelimit:swipe", cfg.SwipesPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init swipe limiter: %v", err)
	}
	uploadLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "pawmatch:ratelimit:upload", cfg.UploadsPerMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init upload limiter: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		TokenVerifier:  tokenVerifier,
		SwipeLimiter:   swipeLimiter,
		UploadLimiter:  uploadLimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("matchmaker server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
