package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/config"
	"github.com/reachlab/campaign-server-go/internal/database"
	"github.com/reachlab/campaign-server-go/internal/handler"
	"github.com/reachlab/campaign-server-go/internal/jobs"
	"github.com/reachlab/campaign-server-go/internal/middleware"
	"github.com/reachlab/campaign-server-go/internal/redis"
	"github.com/reachlab/campaign-server-go/internal/repository"
	"github.com/reachlab/campaign-server-go/internal/service"
	"github.com/reachlab/campaign-server-go/internal/sse"
)

func main() {
	_ = godotenv.Load()

	isProduction := os.Getenv("APP_ENV") == "production"

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !isProduction {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	credRepo := repository.NewCredentialRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	stateStore := service.NewStateStore(redisClient, cfg.StateTTL())

	igClient := service.NewInstagramClient(cfg)
	xClient := service.NewXClient(cfg)
	ttClient := service.NewTikTokClient(cfg)

	authService := service.NewAuthService(userRepo, credRepo, cfg.JWTSecret, cfg.SessionTTL())
	linkService := service.NewLinkService(
		cfg,
		[]service.ProviderClient{igClient, xClient, ttClient},
		stateStore, userRepo, credRepo, broker,
	)

	limiter := service.NewRateLimiter(redisClient.Client)

	sessionMiddleware := middleware.NewSessionMiddleware(authService)
	loginLimitMiddleware := middleware.NewIPRateLimitMiddleware(limiter, cfg.LoginLimitPerMin, time.Minute, "login")
	apiLimitMiddleware := middleware.NewUserRateLimitMiddleware(limiter, cfg.APIRateLimitPerMin, time.Minute)
	metaSignatureMiddleware := middleware.NewMetaSignatureMiddleware(cfg.MetaAppSecret)

	csrfMiddleware := middleware.NewCSRFMiddleware(isProduction)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	eventsHandler := handler.NewEventsHandler(broker)
	authHandler := handler.NewAuthHandler(
		authService, linkService, sessionMiddleware, loginLimitMiddleware,
		eventsHandler, cfg.SessionTTL(), isProduction,
	)
	instagramHandler := handler.NewInstagramHandler(cfg, linkService, igClient, sessionMiddleware, metaSignatureMiddleware)
	xHandler := handler.NewXHandler(cfg, linkService, xClient, sessionMiddleware)
	tiktokHandler := handler.NewTikTokHandler(cfg, linkService, ttClient, sessionMiddleware)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Use(csrfMiddleware.Handler)
		r.Mount("/", authHandler.Routes())
	})

	// The session must resolve before the per-user limiter sees the request,
	// otherwise every request counts as anonymous and passes unthrottled.
	r.Route("/instagram", func(r chi.Router) {
		r.Use(sessionMiddleware.Optional)
		r.Use(apiLimitMiddleware.Handler)
		r.Mount("/", instagramHandler.Routes())
	})

	r.Route("/api/x", func(r chi.Router) {
		r.Use(sessionMiddleware.Optional)
		r.Use(apiLimitMiddleware.Handler)
		r.Mount("/", xHandler.Routes())
	})

	r.Route("/tiktok", func(r chi.Router) {
		r.Use(sessionMiddleware.Optional)
		r.Use(apiLimitMiddleware.Handler)
		r.Mount("/", tiktokHandler.Routes())
	})

	r.Get("/*", handler.StaticFileServer("static/web").ServeHTTP)

	refreshJob := jobs.NewRefreshJob(credRepo, linkService, cfg.RefreshSweepInterval(), cfg.RefreshWindow())
	refreshJob.Start()
	defer refreshJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
