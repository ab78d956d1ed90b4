package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tryonapp/config"
	"tryonapp/controllers"
	"tryonapp/services"
	"tryonapp/tryon"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4/middleware"
)

const sessionIdleTTL = 2 * time.Hour

func main() {
	cfg, err := config.Load()
	logger := services.NewLogger(os.Getenv("ENV"))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = services.NewLogger(cfg.Env)
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET environment variable is not set!")
	}
	if err := services.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Fatal().Err(err).Msg("sentry.Init")
	}
	defer sentry.Recover()
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier services.Notifier = services.NopNotifier{}
	var pushTokens *services.PushTokenStore
	if cfg.PushEnabled {
		pushTokens = services.NewPushTokenStore()
		firebaseNotifier, err := services.NewFirebaseNotifier(ctx, pushTokens, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("error initializing firebase app")
		}
		notifier = firebaseNotifier
	}

	factory, cleanup, err := controllers.NewSessionFactory(ctx, cfg, notifier, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire sessions")
	}
	defer cleanup()
	registry := tryon.NewRegistry(factory.Build)
	defer registry.Close()

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.Evict(sessionIdleTTL); n > 0 {
					logger.Debug().Int("sessions", n).Msg("evicted idle sessions")
				}
			}
		}
	}()

	e := controllers.SetupServer(registry, pushTokens, cfg.JWTSecret, logger)
	e.Debug = cfg.IsLocal()
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(10)))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))

	go func() {
		logger.Info().Str("port", cfg.Port).Str("backend", cfg.ProcessingBackend).Msg("starting gateway")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
