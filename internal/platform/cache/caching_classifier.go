// Package cache provides caching implementations for classifier interfaces.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
	"wheatleaf_backend/internal/platform/preprocess"
)

const (
	// DefaultTTL is used when no positive TTL is given.
	DefaultTTL = 24 * time.Hour
	// flightTimeout bounds a shared call, which outlives the caller that started it.
	flightTimeout = 2 * time.Minute
)

// CachingClassifier decorates a Classifier with Redis caching keyed by image content.
// Classification is deterministic for a fixed model, so a hit is returned without decoding.
type CachingClassifier struct {
	inner     usecase.Classifier
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	logger    *zap.Logger
	group     singleflight.Group

	flightTimeout time.Duration
}

// CachingClassifier must satisfy the Classifier interface.
var _ usecase.Classifier = (*CachingClassifier)(nil)

// cachedPrediction is the JSON value stored under each key.
type cachedPrediction struct {
	Prediction entity.Prediction `json:"prediction"`
	Info       preprocess.Info   `json:"info"`
}

type flightResult struct {
	pred entity.Prediction
	info preprocess.Info
}

// NewCachingClassifier decorates a Classifier with Redis caching.
// If ttl is 0, it defaults to 24 hours. If namespace is empty, it uses "predictions".
func NewCachingClassifier(rdb *redis.Client, ttl time.Duration, inner usecase.Classifier, namespace string, logger *zap.Logger) *CachingClassifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if namespace == "" {
		namespace = "predictions"
	}
	return &CachingClassifier{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		logger:    logger,

		flightTimeout: flightTimeout,
	}
}

// ModelName returns the decorated classifier's model name.
func (c *CachingClassifier) ModelName() string {
	return c.inner.ModelName()
}

// Classify returns a cached prediction for identical image bytes, falling back to the inner classifier.
// Concurrent calls for the same image share one inner call. The shared call is
// detached from any single caller's cancellation; each caller still returns
// as soon as its own ctx is done.
func (c *CachingClassifier) Classify(ctx context.Context, data []byte) (entity.Prediction, preprocess.Info, error) {
	// Bypass cache if Redis is not configured
	if c.rdb == nil || len(data) == 0 {
		return c.inner.Classify(ctx, data)
	}

	key := c.cacheKey(data)

	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		// 1) Check cache
		if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			var hit cachedPrediction
			if err := json.Unmarshal(b, &hit); err == nil && hit.Prediction.Label.Index() == hit.Prediction.Index {
				return flightResult{pred: hit.Prediction, info: hit.Info}, nil
			}
			// Delete corrupted cache entry
			if err := c.rdb.Del(ctx, key).Err(); err != nil {
				c.logger.Warn("failed to delete corrupted prediction cache entry", zap.String("key", key), zap.Error(err))
			}
		}

		// 2) Fallback to the model
		pred, info, err := c.inner.Classify(ctx, data)
		if err != nil {
			return nil, err
		}

		// 3) Store in cache (best effort)
		if b, err := json.Marshal(cachedPrediction{Prediction: pred, Info: info}); err == nil {
			if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
				c.logger.Warn("failed to store prediction cache entry", zap.String("key", key), zap.Error(err))
			}
		}
		return flightResult{pred: pred, info: info}, nil
	})

	select {
	case <-ctx.Done():
		return entity.Prediction{}, preprocess.Info{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return entity.Prediction{}, preprocess.Info{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("prediction shared with in-flight request", zap.String("key", key))
		}
		r := res.Val.(flightResult)
		return r.pred, r.info, nil
	}
}

// cacheKey generates a cache key from the model name and the BLAKE2b-256 digest of the image.
func (c *CachingClassifier) cacheKey(data []byte) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, safe(c.inner.ModelName()), preprocess.Digest(data))
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
