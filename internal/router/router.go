package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/ytpm/backend/internal/config"
	"github.com/ytpm/backend/internal/crypto"
	"github.com/ytpm/backend/internal/handlers"
	"github.com/ytpm/backend/internal/middleware"
	"github.com/ytpm/backend/internal/queue"
	"github.com/ytpm/backend/internal/services"
)

// Deps are the long-lived components the routes are served from.
type Deps struct {
	Rooms       *queue.Manager
	Auth        *services.AuthService
	YouTube     handlers.Searcher
	Videos      handlers.VideoLookup
	OperatorKey *crypto.OperatorKey
	RateLimiter *middleware.RateLimiter
}

func New(cfg *config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	realIP := middleware.NewRealIPMiddleware(cfg.TrustedProxies)
	r.Use(realIP.Handler)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if cfg.SentryDSN != "" {
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Handlers
	sessionHandler := handlers.NewSessionHandler(d.Auth, d.Rooms)
	configHandler := handlers.NewConfigHandler(cfg)
	sentryTunnelHandler := handlers.NewSentryTunnelHandler(cfg)
	youtubeHandler := handlers.NewYouTubeHandler(d.YouTube)
	playerHandler := handlers.NewPlayerHandler(d.Rooms, d.Videos, d.Auth, cfg.LongPollTimeout)
	clientHandler := handlers.NewClientHandler(d.Videos, d.Auth, cfg.LongPollTimeout)
	wsHandler := handlers.NewWebSocketHandler(d.Videos, d.Auth, cfg.CORSAllowedOrigins)
	adminHandler := handlers.NewAdminHandler(d.Rooms)

	limited := d.RateLimiter.Middleware
	clientAuth := middleware.ClientAuth(d.Auth, d.Rooms)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", sessionHandler.Health)
		r.Get("/config", configHandler.PublicConfig)
		r.Post("/sentry-tunnel", sentryTunnelHandler.Tunnel)

		// Joining a room and discovery are rate limited per client IP
		r.With(limited).Get("/auth", sessionHandler.Auth)
		r.With(limited, clientAuth).Get("/search", youtubeHandler.Search)
		r.With(limited).Get("/autocomplete", youtubeHandler.Autocomplete)

		r.Route("/player", func(r chi.Router) {
			r.Get("/register", playerHandler.Register)

			r.Group(func(r chi.Router) {
				r.Use(middleware.PlayerAuth(d.Rooms))
				r.Get("/poll", playerHandler.Poll)
				r.Get("/next_song", playerHandler.NextSong)
				r.Post("/update", playerHandler.Update)
			})
		})

		r.Route("/client", func(r chi.Router) {
			r.Use(clientAuth)
			r.Get("/poll", clientHandler.Poll)
			r.Get("/poll/v2", clientHandler.PollV2)
			r.Get("/stream", clientHandler.Stream)
			r.Get("/ws", wsHandler.Serve)
			r.Get("/enqueue", clientHandler.Enqueue)
			r.Get("/dequeue", clientHandler.Dequeue)
			r.Get("/queue_state", clientHandler.QueueState)
			r.Get("/autoplay_blacklist", clientHandler.AutoplayBlacklist)
			r.Get("/play_history", clientHandler.PlayHistory)
			r.Get("/set_command", clientHandler.SetCommand)
			r.Get("/autoqueue_state", clientHandler.AutoQueueState)
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(middleware.OperatorOnly(d.OperatorKey))
			r.Get("/queue_states", adminHandler.QueueStates)
			r.Get("/clean_queues", adminHandler.CleanQueues)
		})
	})

	return r
}
