package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tryonapp/config"
	"tryonapp/controllers"
	"tryonapp/services"
	"tryonapp/telegram"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/golang-jwt/jwt/v4"
)

// tokenMinter signs backend tokens for chat users with the shared secret.
func tokenMinter(secret string) telegram.TokenMinter {
	return func(userID string) (string, error) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 72)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		})
		return token.SignedString([]byte(secret))
	}
}

func main() {
	cfg, err := config.Load()
	logger := services.NewLogger(os.Getenv("ENV"))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger = services.NewLogger(cfg.Env)
	if cfg.TelegramToken == "" {
		logger.Fatal().Msg("TG_TOKEN environment variable is not set!")
	}
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

	factory, cleanup, err := controllers.NewSessionFactory(ctx, cfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire sessions")
	}
	defer cleanup()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("error tg bot init")
	}
	api.Debug = cfg.IsLocal()
	logger.Info().Str("account", api.Self.UserName).Strs("admins", cfg.TelegramAdmins).Msg("authorized on account")

	bot := telegram.NewBot(api, factory.Build, tokenMinter(cfg.JWTSecret), cfg.TelegramAdmins, logger)
	defer bot.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	bot.Run(ctx, updates)
}
