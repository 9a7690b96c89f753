// Package session stores per-chat bot state in Redis so it survives restarts
// and is shared between bot replicas.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wheatleaf_backend/internal/feature/diagnosis/transport/telegram"
)

const (
	// DefaultStateTTL bounds how long an idle chat keeps a non-default state.
	DefaultStateTTL = 24 * time.Hour
	// DefaultProcessingTTL releases the processing lock if a bot replica dies mid-request.
	DefaultProcessingTTL = 2 * time.Minute
)

// ChatStateRedis implements telegram.StateStore using Redis.
type ChatStateRedis struct {
	client        *redis.Client
	prefix        string
	stateTTL      time.Duration
	processingTTL time.Duration
}

var _ telegram.StateStore = (*ChatStateRedis)(nil)

// NewChatStateRedis creates a new ChatStateRedis instance.
func NewChatStateRedis(client *redis.Client, prefix string) *ChatStateRedis {
	if prefix == "" {
		prefix = "chat"
	}
	return &ChatStateRedis{
		client:        client,
		prefix:        prefix,
		stateTTL:      DefaultStateTTL,
		processingTTL: DefaultProcessingTTL,
	}
}

// stateKey returns the Redis key for a chat's view state.
func (r *ChatStateRedis) stateKey(chatID int64) string {
	return fmt.Sprintf("%s:%d:state", r.prefix, chatID)
}

// processingKey returns the Redis key for a chat's processing lock.
func (r *ChatStateRedis) processingKey(chatID int64) string {
	return fmt.Sprintf("%s:%d:processing", r.prefix, chatID)
}

// Get returns the chat's state; a held processing lock wins over the stored state.
func (r *ChatStateRedis) Get(ctx context.Context, chatID int64) (telegram.ChatState, error) {
	n, err := r.client.Exists(ctx, r.processingKey(chatID)).Result()
	if err != nil {
		return "", err
	}
	if n > 0 {
		return telegram.StateProcessing, nil
	}

	s, err := r.client.Get(ctx, r.stateKey(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return telegram.StateMainMenu, nil
	}
	if err != nil {
		return "", err
	}
	return telegram.ChatState(s), nil
}

// Set stores the chat's view state. It never releases a held processing lock.
func (r *ChatStateRedis) Set(ctx context.Context, chatID int64, state telegram.ChatState) error {
	switch state {
	case telegram.StateProcessing:
		return r.client.Set(ctx, r.processingKey(chatID), "1", r.processingTTL).Err()
	case telegram.StateMainMenu:
		return r.client.Del(ctx, r.stateKey(chatID)).Err()
	default:
		return r.client.Set(ctx, r.stateKey(chatID), string(state), r.stateTTL).Err()
	}
}

// BeginProcessing takes the processing lock with SET NX.
func (r *ChatStateRedis) BeginProcessing(ctx context.Context, chatID int64) (bool, error) {
	return r.client.SetNX(ctx, r.processingKey(chatID), "1", r.processingTTL).Result()
}

// EndProcessing releases the processing lock.
func (r *ChatStateRedis) EndProcessing(ctx context.Context, chatID int64) error {
	return r.client.Del(ctx, r.processingKey(chatID)).Err()
}
