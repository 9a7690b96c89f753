package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/platform/config"
	"wheatleaf_backend/internal/platform/redis"
)

// TestNewRedisClient_Unreachable は接続できない場合にエラーを返すことを検証します。
func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// ポート1は通常リッスンされていない
	rdb, err := redis.NewRedisClient(ctx, config.CacheConfig{RedisHost: "127.0.0.1", RedisPort: "1"}, zap.NewNop())

	assert.Error(t, err)
	assert.Nil(t, rdb)
}
