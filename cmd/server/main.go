package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wheatleaf_backend/internal/app/di"
	"wheatleaf_backend/internal/app/router"
	diagnosishandler "wheatleaf_backend/internal/feature/diagnosis/transport/handler"
	"wheatleaf_backend/internal/platform/config"
	"wheatleaf_backend/internal/platform/logger"
	"wheatleaf_backend/internal/platform/ratelimiter"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := di.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build application", zap.Error(err))
	}
	defer app.Close()

	// Handler
	diagnosisH := diagnosishandler.NewDiagnosisHandler(app.Diagnosis, log)

	// ルータ生成
	r := router.NewRouter(cfg, router.Deps{
		Diagnosis: diagnosisH,
		Limiter:   ratelimiter.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		ModelName: app.ModelName,
		Runtime:   app.Runtime,

		HistoryEnabled: app.HistoryEnabled,
	}, log)

	if app.HistoryEnabled && cfg.JWT.Secret == "" {
		log.Warn("JWT_SECRET is not set; history endpoints will reject every request")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("model", app.ModelName),
			zap.String("runtime", app.Runtime),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("server exited")
}
