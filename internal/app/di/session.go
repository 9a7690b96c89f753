package di

import (
	"github.com/redis/go-redis/v9"

	"wheatleaf_backend/internal/feature/diagnosis/transport/telegram"
	"wheatleaf_backend/internal/platform/session"
)

// NewChatStateStore creates a StateStore implementation.
// If Redis is available, it returns a Redis-backed implementation.
// Otherwise, it falls back to process memory.
func NewChatStateStore(rdb *redis.Client) telegram.StateStore {
	if rdb != nil {
		return session.NewChatStateRedis(rdb, "chat")
	}
	return telegram.NewMemoryStateStore()
}
