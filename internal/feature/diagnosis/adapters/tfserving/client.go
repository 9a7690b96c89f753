package tfserving

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/adapters/tfserving/dto"
	"wheatleaf_backend/internal/feature/diagnosis/classifier"
	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/platform/preprocess"
)

// maxErrorBody はエラー時にログへ残すレスポンスボディの最大バイト数です。
const maxErrorBody = 512

// Model はTensorFlow Servingの :predict エンドポイントで推論するModel実装です。
type Model struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// ModelがModelインターフェースを実装していることをコンパイル時に検証します。
var _ classifier.Model = (*Model)(nil)

// NewModel は指定された設定とHTTPクライアントでModelの新しいインスタンスを生成します。
func NewModel(cfg Config, client *http.Client, logger *zap.Logger) *Model {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Model{cfg: cfg, client: client, logger: logger}
}

// Name はサービング上のモデル名を返します。
func (m *Model) Name() string {
	if m.cfg.Version != "" {
		return m.cfg.ModelName + "@" + m.cfg.Version
	}
	return m.cfg.ModelName
}

func (m *Model) endpoint() string {
	if m.cfg.Version != "" {
		return fmt.Sprintf("%s/v1/models/%s/versions/%s:predict", m.cfg.BaseURL, m.cfg.ModelName, m.cfg.Version)
	}
	return fmt.Sprintf("%s/v1/models/%s:predict", m.cfg.BaseURL, m.cfg.ModelName)
}

// Predict はテンソルをネストした配列に変換して送信し、1件目の予測を返します。
func (m *Model) Predict(ctx context.Context, in preprocess.Tensor) ([]float32, error) {
	if len(in.Shape) < 2 || in.Shape[0] != 1 || in.Len() != len(in.Data) {
		return nil, fmt.Errorf("%w: cannot send tensor of shape %v", domain.ErrShapeMismatch, in.Shape)
	}

	// バッチ次元を除いた1インスタンス分を送る
	body, err := json.Marshal(dto.PredictRequest{Instances: []any{nest(in.Data, in.Shape[1:])}})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			m.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if res.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		m.logger.Warn("tfserving returned error status",
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", snippet),
		)
		return nil, fmt.Errorf("%w: tfserving http %d", domain.ErrModelUnavailable, res.StatusCode)
	}

	var out dto.PredictResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode predict response: %v", domain.ErrModelUnavailable, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%w: tfserving: %s", domain.ErrModelUnavailable, out.Error)
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("%w: got %d predictions for 1 instance", domain.ErrShapeMismatch, len(out.Predictions))
	}
	return out.Predictions[0], nil
}

// nest はフラットなrow-major配列をshapeに従ったネスト配列に変換します。
func nest(data []float32, shape []int64) any {
	if len(shape) == 1 {
		return data[:shape[0]]
	}
	stride := 1
	for _, d := range shape[1:] {
		stride *= int(d)
	}
	out := make([]any, shape[0])
	for i := range out {
		out[i] = nest(data[i*stride:(i+1)*stride], shape[1:])
	}
	return out
}
