// Package vision はGoogle Cloud Vision APIを使用した被写体チェック（植物かどうか）を提供します。
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"

	"wheatleaf_backend/internal/feature/diagnosis/usecase"
)

// DefaultMinScore はラベルを採用する最小スコアです。
const DefaultMinScore = 0.6

// plantTerms はVisionのラベル記述のうち植物とみなす語です。
var plantTerms = []string{
	"plant", "leaf", "wheat", "grass", "crop", "cereal", "grain",
	"vegetation", "flora", "botany", "agriculture", "field", "barley", "rye",
}

// annotator はVision APIのバッチアノテーション部分を抽象化します。
type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// VisionPlantGate はLABEL_DETECTIONの結果から画像に植物が写っているかを判定します。
type VisionPlantGate struct {
	client   annotator
	closer   func() error
	minScore float32
	timeout  time.Duration
}

// VisionPlantGateがSubjectGateを実装していることをコンパイル時に検証します。
var _ usecase.SubjectGate = (*VisionPlantGate)(nil)

// NewVisionPlantGate はADCを使用してVisionPlantGateの新しいインスタンスを生成します。
func NewVisionPlantGate(ctx context.Context, minScore float32, timeout time.Duration) (*VisionPlantGate, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &VisionPlantGate{client: client, closer: client.Close, minScore: minScore, timeout: timeout}, nil
}

// Close はVision APIクライアントを解放します。
func (v *VisionPlantGate) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer()
}

// IsPlant は画像のラベルに植物関連の語が minScore 以上で含まれるかを返します。
func (v *VisionPlantGate) IsPlant(ctx context.Context, imageData []byte) (bool, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: imageData},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 20},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return false, fmt.Errorf("vision API request failed: %w", err)
	}

	if len(resp.Responses) == 0 {
		return false, fmt.Errorf("vision API returned no responses")
	}

	if resp.Responses[0].Error != nil {
		return false, fmt.Errorf("vision API error: %s", resp.Responses[0].Error.Message)
	}

	for _, l := range resp.Responses[0].LabelAnnotations {
		if l.Score >= v.minScore && isPlantTerm(l.Description) {
			return true, nil
		}
	}
	return false, nil
}

func isPlantTerm(desc string) bool {
	d := strings.ToLower(desc)
	for _, term := range plantTerms {
		if strings.Contains(d, term) {
			return true
		}
	}
	return false
}
