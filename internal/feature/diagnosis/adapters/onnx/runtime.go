// Package onnx はONNX Runtimeを使ったローカル推論のアダプターを提供します。
package onnx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/classifier"
	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/platform/preprocess"
)

const (
	DefaultInputName  = "input"
	DefaultOutputName = "output"
)

// Config はONNXモデルの読み込み設定です。
type Config struct {
	ModelPath         string
	MetadataPath      string // 任意
	SharedLibraryPath string // 空の場合はonnxruntime_goの既定パス
	InputName         string
	OutputName        string
	Spec              preprocess.Spec
}

// environment はプロセス全体で1つのONNX Runtime環境を管理します。
var environment struct {
	mu    sync.Mutex
	ready bool
	refs  int
}

func acquireEnvironment(libPath string) error {
	environment.mu.Lock()
	defer environment.mu.Unlock()
	if !environment.ready {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		environment.ready = true
	}
	environment.refs++
	return nil
}

func releaseEnvironment(logger *zap.Logger) {
	environment.mu.Lock()
	defer environment.mu.Unlock()
	if !environment.ready {
		return
	}
	environment.refs--
	if environment.refs > 0 {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		logger.Warn("failed to destroy ONNX environment", zap.Error(err))
	}
	environment.ready = false
}

// Runtime はONNXモデルを遅延ロードして推論を行います。
// ロードは初回のPredictで行われ、失敗した場合は次回のPredictで再試行されます。
type Runtime struct {
	cfg    Config
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// RuntimeがModelを実装していることをコンパイル時に検証します。
var _ classifier.Model = (*Runtime)(nil)

// NewRuntime はRuntimeを生成します。メタデータは即時に検証しますが、モデルはまだ読み込みません。
func NewRuntime(cfg Config, logger *zap.Logger) (*Runtime, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx: model path is required")
	}
	if cfg.InputName == "" {
		cfg.InputName = DefaultInputName
	}
	if cfg.OutputName == "" {
		cfg.OutputName = DefaultOutputName
	}
	if cfg.MetadataPath != "" {
		md, err := LoadMetadata(cfg.MetadataPath)
		if err != nil {
			return nil, err
		}
		if err := md.apply(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	return &Runtime{cfg: cfg, name: name, logger: logger}, nil
}

// Spec は前処理に使用する入力仕様を返します（メタデータ反映済み）。
func (r *Runtime) Spec() preprocess.Spec {
	return r.cfg.Spec
}

// Name はモデルファイル名（拡張子なし）を返します。
func (r *Runtime) Name() string {
	return r.name
}

// Predict はテンソルを推論してスコアを返します。
// セッションの入出力テンソルは共有されるため、実行はミューテックスで直列化されます。
func (r *Runtime) Predict(ctx context.Context, in preprocess.Tensor) ([]float32, error) {
	if !slices.Equal(in.Shape, r.cfg.Spec.Shape()) || len(in.Data) != in.Len() {
		return nil, fmt.Errorf("%w: input shape %v, model expects %v", domain.ErrShapeMismatch, in.Shape, r.cfg.Spec.Shape())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(); err != nil {
		return nil, err
	}

	copy(r.input.GetData(), in.Data)
	if err := r.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: inference failed: %v", domain.ErrModelLoad, err)
	}

	out := r.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Load はモデルを明示的に読み込みます。起動時のウォームアップに使用します。
func (r *Runtime) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Runtime) loadLocked() error {
	if r.session != nil {
		return nil
	}

	if _, err := os.Stat(r.cfg.ModelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrModelNotFound, r.cfg.ModelPath)
		}
		return fmt.Errorf("%w: %v", domain.ErrModelLoad, err)
	}

	if err := acquireEnvironment(r.cfg.SharedLibraryPath); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrModelLoad, err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(r.cfg.Spec.Shape()...))
	if err != nil {
		releaseEnvironment(r.logger)
		return fmt.Errorf("%w: failed to create input tensor: %v", domain.ErrModelLoad, err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape()...))
	if err != nil {
		input.Destroy()
		releaseEnvironment(r.logger)
		return fmt.Errorf("%w: failed to create output tensor: %v", domain.ErrModelLoad, err)
	}

	session, err := ort.NewAdvancedSession(r.cfg.ModelPath,
		[]string{r.cfg.InputName}, []string{r.cfg.OutputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		releaseEnvironment(r.logger)
		return fmt.Errorf("%w: failed to create ONNX session: %v", domain.ErrModelLoad, err)
	}

	r.session, r.input, r.output = session, input, output
	r.logger.Info("onnx model loaded",
		zap.String("path", r.cfg.ModelPath),
		zap.Int64s("input_shape", r.cfg.Spec.Shape()),
		zap.String("layout", string(r.cfg.Spec.Layout)),
	)
	return nil
}

// Close はセッションとテンソルを解放します。
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return
	}
	if err := r.input.Destroy(); err != nil {
		r.logger.Warn("failed to destroy input tensor", zap.Error(err))
	}
	if err := r.output.Destroy(); err != nil {
		r.logger.Warn("failed to destroy output tensor", zap.Error(err))
	}
	if err := r.session.Destroy(); err != nil {
		r.logger.Warn("failed to destroy ONNX session", zap.Error(err))
	}
	r.session, r.input, r.output = nil, nil, nil
	releaseEnvironment(r.logger)
}
