package di

import (
	"context"
	"errors"

	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/adapters"
	"wheatleaf_backend/internal/feature/diagnosis/adapters/gemini"
	"wheatleaf_backend/internal/feature/diagnosis/adapters/vision"
	"wheatleaf_backend/internal/feature/diagnosis/transport/handler"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
	"wheatleaf_backend/internal/platform/config"
	infradb "wheatleaf_backend/internal/platform/db"
	infraredis "wheatleaf_backend/internal/platform/redis"
)

// App holds the wired diagnosis feature shared by the HTTP server and the bot.
type App struct {
	Diagnosis handler.DiagnosisUsecase
	ModelName string
	Runtime   string

	// HistoryEnabled reports whether a database backs the history endpoints.
	HistoryEnabled bool
	// Redis is nil when caching is disabled or Redis was unreachable at startup.
	Redis *redisv9.Client

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewApp wires the diagnosis feature from configuration.
// Redis, Gemini and the Vision gate are optional: a failure to reach them is
// logged and the feature runs without them. A configured database must open.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Runtime: cfg.Model.Runtime}

	rdb := newRedis(ctx, cfg.Cache, logger)
	app.Redis = rdb
	if rdb != nil {
		app.closers = append(app.closers, func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", zap.Error(err))
			}
		})
	}

	clf, closeModel, err := NewClassifier(cfg, rdb, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeModel)
	app.ModelName = clf.ModelName()

	history, closeDB, err := NewHistoryRepository(cfg.DB, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.closers = append(app.closers, closeDB)
	app.HistoryEnabled = history != nil

	var gate usecase.SubjectGate
	if cfg.Vision.Enabled {
		g, err := vision.NewVisionPlantGate(ctx, cfg.Vision.MinScore, cfg.Vision.Timeout)
		if err != nil {
			logger.Warn("vision gate unavailable; running without it", zap.Error(err))
		} else {
			gate = g
			app.closers = append(app.closers, func() {
				if err := g.Close(); err != nil {
					logger.Error("failed to close vision client", zap.Error(err))
				}
			})
		}
	}

	var advisor usecase.Advisor
	if cfg.Gemini.Enabled {
		a, err := gemini.NewGeminiAdvisor(ctx, cfg.Gemini.Model, cfg.Gemini.Timeout)
		if err != nil {
			logger.Warn("gemini advisor unavailable; using canned advice", zap.Error(err))
		} else {
			advisor = a
		}
	}

	app.Diagnosis = usecase.NewDiagnosisUsecase(clf, gate, advisor, history, logger)
	return app, nil
}

func newRedis(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) *redisv9.Client {
	if !cfg.Enabled() {
		return nil
	}
	pingCtx, cancel := withTimeout(ctx, 0)
	defer cancel()

	rdb, err := infraredis.NewRedisClient(pingCtx, cfg, logger)
	if err != nil {
		logger.Warn("redis unavailable; running without cache", zap.Error(err))
		return nil
	}
	return rdb
}

// NewHistoryRepository returns a gorm-backed history, or nil when DB_DRIVER is empty.
func NewHistoryRepository(cfg config.DBConfig, logger *zap.Logger) (usecase.HistoryRepository, func(), error) {
	db, err := infradb.Open(cfg, logger)
	if errors.Is(err, infradb.ErrDisabled) {
		logger.Info("history disabled")
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	closeDB := func() {
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}
	return adapters.NewHistoryRepository(db), closeDB, nil
}
