package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/app/di"
	"wheatleaf_backend/internal/feature/diagnosis/transport/telegram"
	"wheatleaf_backend/internal/platform/config"
	infrahttp "wheatleaf_backend/internal/platform/http"
	"wheatleaf_backend/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("CRITICAL: failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		os.Stderr.WriteString("CRITICAL: failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Telegram.Token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := di.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}
	defer app.Close()

	httpClient := infrahttp.NewHTTPClient(cfg.Telegram.RequestTimeout)
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		log.Fatal("failed to create telegram client", zap.Error(err))
	}
	api.Debug = cfg.Telegram.Debug
	log.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	bot := telegram.NewBot(api, app.Diagnosis, di.NewChatStateStore(app.Redis), httpClient, cfg.Telegram.UpdateTimeout, log)

	log.Info("bot is running", zap.String("model", app.ModelName))
	if err := bot.Run(ctx); err != nil {
		log.Error("bot stopped with error", zap.Error(err))
	}
	log.Info("bot exited")
}
