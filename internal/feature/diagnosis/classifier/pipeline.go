// Package classifier は画像バイト列から病害ラベルを推定するパイプラインを提供します。
package classifier

import (
	"context"
	"errors"
	"fmt"

	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/platform/preprocess"
)

// DefaultMaxPixels はデコードを許可する画像の最大画素数（約40メガピクセル）です。
const DefaultMaxPixels = 40_000_000

// Model は前処理済みテンソルに対して推論を行うランタイムのインターフェースです。
// ONNX Runtime（ローカル）とTensorFlow Serving（リモート）の実装があります。
type Model interface {
	// Predict は1バッチ分のテンソルを推論し、ラベルごとのスコアを返します。
	Predict(ctx context.Context, input preprocess.Tensor) ([]float32, error)
	// Name はキャッシュキーや履歴に記録するモデル名を返します。
	Name() string
}

// Pipeline はデコード→リサイズ→テンソル化→推論→arg-maxの一連の処理を行います。
type Pipeline struct {
	model     Model
	spec      preprocess.Spec
	maxPixels int
}

// NewPipeline はPipelineの新しいインスタンスを生成します。
// maxPixels が0以下の場合は DefaultMaxPixels を使用します。
func NewPipeline(model Model, spec preprocess.Spec, maxPixels int) (*Pipeline, error) {
	if model == nil {
		return nil, errors.New("classifier: model is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Pipeline{model: model, spec: spec, maxPixels: maxPixels}, nil
}

// ModelName は使用中のモデル名を返します。
func (p *Pipeline) ModelName() string {
	return p.model.Name()
}

// Classify は画像バイト列を分類し、予測結果と画像情報を返します。
func (p *Pipeline) Classify(ctx context.Context, data []byte) (entity.Prediction, preprocess.Info, error) {
	if len(data) == 0 {
		return entity.Prediction{}, preprocess.Info{}, domain.ErrEmptyImage
	}

	img, info, err := preprocess.Decode(data, p.maxPixels)
	switch {
	case errors.Is(err, preprocess.ErrTooManyPixels):
		return entity.Prediction{}, info, fmt.Errorf("%w: %v", domain.ErrImageTooLarge, err)
	case err != nil:
		return entity.Prediction{}, info, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}

	tensor := preprocess.ToTensor(img, p.spec)

	scores, err := p.model.Predict(ctx, tensor)
	if err != nil {
		return entity.Prediction{}, info, fmt.Errorf("model %s predict: %w", p.model.Name(), err)
	}

	pred, err := Decide(scores)
	if err != nil {
		return entity.Prediction{}, info, err
	}
	return pred, info, nil
}

// Decide はモデル出力からarg-maxでラベルを決定します。
// 出力長がラベル数と一致しない場合は ErrShapeMismatch を返します。
func Decide(scores []float32) (entity.Prediction, error) {
	if len(scores) != entity.NumLabels {
		return entity.Prediction{}, fmt.Errorf("%w: got %d scores, want %d", domain.ErrShapeMismatch, len(scores), entity.NumLabels)
	}

	idx, _ := preprocess.ArgMax(scores)
	label, err := entity.LabelFromIndex(idx)
	if err != nil {
		return entity.Prediction{}, fmt.Errorf("%w: %v", domain.ErrShapeMismatch, err)
	}

	probs := scores
	if !preprocess.IsDistribution(scores) {
		probs = preprocess.Softmax(scores)
	}

	raw := make([]float32, len(scores))
	copy(raw, scores)

	return entity.Prediction{
		Index:      idx,
		Label:      label,
		Confidence: probs[idx],
		Scores:     raw,
	}, nil
}
