// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/adapters/onnx"
	"wheatleaf_backend/internal/feature/diagnosis/adapters/tfserving"
	"wheatleaf_backend/internal/feature/diagnosis/classifier"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
	"wheatleaf_backend/internal/platform/cache"
	"wheatleaf_backend/internal/platform/config"
	infrahttp "wheatleaf_backend/internal/platform/http"
	"wheatleaf_backend/internal/platform/preprocess"
)

// NewModel creates the inference backend selected by MODEL_RUNTIME together
// with the preprocessing spec it expects. The returned func releases it.
func NewModel(cfg config.ModelConfig, logger *zap.Logger) (classifier.Model, preprocess.Spec, func(), error) {
	spec, err := cfg.Spec()
	if err != nil {
		return nil, preprocess.Spec{}, nil, err
	}

	switch cfg.Runtime {
	case config.RuntimeONNX:
		rt, err := onnx.NewRuntime(onnx.Config{
			ModelPath:         cfg.Path,
			MetadataPath:      cfg.MetadataPath,
			SharedLibraryPath: cfg.SharedLibraryPath,
			InputName:         cfg.InputName,
			OutputName:        cfg.OutputName,
			Spec:              spec,
		}, logger)
		if err != nil {
			return nil, preprocess.Spec{}, nil, err
		}
		if cfg.Warmup {
			if err := rt.Load(); err != nil {
				rt.Close()
				return nil, preprocess.Spec{}, nil, fmt.Errorf("warm up model: %w", err)
			}
		}
		return rt, rt.Spec(), rt.Close, nil

	case config.RuntimeTFServing:
		tfCfg := tfserving.Config{
			BaseURL:   cfg.TFServingURL,
			ModelName: cfg.TFServingName,
			Version:   cfg.TFServingVersion,
			Timeout:   cfg.TFServingTimeout,
		}
		m := tfserving.NewModel(tfCfg, infrahttp.NewHTTPClient(tfCfg.Timeout), logger)
		return m, spec, func() {}, nil

	default:
		return nil, preprocess.Spec{}, nil, fmt.Errorf("unknown model runtime %q", cfg.Runtime)
	}
}

// NewClassifier wraps the model in the preprocessing pipeline and, when rdb is
// non-nil, in the Redis prediction cache.
func NewClassifier(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (usecase.Classifier, func(), error) {
	model, spec, closeModel, err := NewModel(cfg.Model, logger)
	if err != nil {
		return nil, nil, err
	}

	pipeline, err := classifier.NewPipeline(model, spec, cfg.Model.MaxPixels)
	if err != nil {
		closeModel()
		return nil, nil, err
	}

	if rdb == nil {
		return pipeline, closeModel, nil
	}
	return cache.NewCachingClassifier(rdb, cfg.Cache.TTL, pipeline, cfg.Cache.Namespace, logger), closeModel, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
