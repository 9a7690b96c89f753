package redis

import (
	"context"
	"net"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/platform/config"
)

// NewRedisClient connects to the configured Redis and pings it once.
// The caller decides whether a failed ping disables caching or aborts startup.
func NewRedisClient(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	addr := net.JoinHostPort(cfg.RedisHost, cfg.RedisPort)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	// 接続確認
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis connection failed", zap.String("address", addr), zap.Error(err))
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("redis connection successful", zap.String("address", addr))
	return rdb, nil
}
