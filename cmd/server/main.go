package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/ytpm/backend/internal/broker"
	"github.com/ytpm/backend/internal/config"
	"github.com/ytpm/backend/internal/crypto"
	"github.com/ytpm/backend/internal/logging"
	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/queue"
	"github.com/ytpm/backend/internal/router"
	"github.com/ytpm/backend/internal/services"
	scrub "github.com/ytpm/backend/internal/sentry"
	"github.com/ytpm/backend/internal/videocache"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	if err := run(config.Load()); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// run serves until SIGINT or SIGTERM. Every deferred cleanup runs before it
// returns, including on startup errors.
func run(cfg *config.Config) error {
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:                   cfg.SentryDSN,
			Environment:           cfg.SentryEnvironment,
			AttachStacktrace:      true,
			BeforeSend:            scrub.ScrubEvent,
			BeforeSendTransaction: scrub.ScrubTransaction,
		})
		if err != nil {
			return fmt.Errorf("initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Video details: local LRU, optional shared Redis tier
	youtube := services.NewYouTubeService(cfg.YouTubeAPIKey, cfg.YouTubeAPIURL, cfg.YouTubeRegionCode)
	if cfg.YouTubeAPIKey == "" {
		slog.Warn("YOUTUBE_API_KEY is not set; search and video details will fail")
	}

	var remote videocache.Store
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Warn("redis unreachable; continuing with the local cache only", slog.String("error", err.Error()))
		} else {
			remote = videocache.NewRedisStore(rdb, cfg.VideoCacheTTL)
		}
	}
	videos := videocache.New(youtube, videocache.NewMemoryStore(cfg.VideoCacheSize, cfg.VideoCacheTTL), remote)
	youtube.SetCache(videos)

	// Rooms
	rooms := queue.NewManager(broker.New(), queue.ManagerOptions{
		IdleTimeout:      cfg.RoomIdleTimeout,
		AutoPlayDefault:  cfg.AutoPlayDefault,
		AutoPlayCooldown: cfg.AutoPlayCooldown,
		DequeuePolicy:    cfg.DequeuePolicy,
		RelatedSource:    youtube,
	})
	if cfg.RoomIdleTimeout > 0 && cfg.RoomSweepInterval > 0 {
		go rooms.Run(ctx, cfg.RoomSweepInterval)
	}

	operatorKey, err := crypto.NewOperatorKey(cfg.OperatorKey)
	if err != nil {
		return fmt.Errorf("hash operator key: %w", err)
	}
	if !operatorKey.Enabled() {
		slog.Info("OPERATOR_KEY is not set; /api/internal is disabled")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	go limiter.Run(ctx)

	handler := router.New(cfg, router.Deps{
		Rooms:       rooms,
		Auth:        services.NewAuthService(cfg.JWTSecret, cfg.UserTokenDuration, rooms),
		YouTube:     youtube,
		Videos:      videos,
		OperatorKey: operatorKey,
		RateLimiter: limiter,
	})

	// Long polls may be unbounded, so there is no write timeout
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("server shutdown error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("starting server", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	<-shutdownDone
	slog.Info("server stopped", slog.Int("rooms", rooms.NumQueues()))
	return nil
}
