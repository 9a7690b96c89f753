package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/platform/preprocess"
)

// Metadata はモデルと一緒に配布される metadata.json の内容です。
// すべてのフィールドは省略可能で、省略時は Config の値が使われます。
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	Layout      string   `json:"layout"`
	Normalize   *bool    `json:"normalize"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// LoadMetadata はJSONファイルからメタデータを読み込みます。
func LoadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &md, nil
}

// apply はメタデータをConfigに反映し、ラベル表・形状との整合性を検証します。
func (md *Metadata) apply(cfg *Config) error {
	if len(md.Classes) > 0 {
		if len(md.Classes) != entity.NumLabels {
			return fmt.Errorf("%w: metadata lists %d classes, want %d", domain.ErrUnknownLabel, len(md.Classes), entity.NumLabels)
		}
		for i, c := range md.Classes {
			l, err := entity.ParseLabel(c)
			if err != nil {
				return fmt.Errorf("class at index %d: %w", i, err)
			}
			if l.Index() != i {
				return fmt.Errorf("%w: class %q at index %d, want %q", domain.ErrUnknownLabel, c, i, entity.Labels()[i])
			}
		}
	}

	if md.ImageSize > 0 {
		cfg.Spec.Width, cfg.Spec.Height = md.ImageSize, md.ImageSize
	}
	if md.Layout != "" {
		layout, err := preprocess.ParseLayout(md.Layout)
		if err != nil {
			return err
		}
		cfg.Spec.Layout = layout
	}
	if md.Normalize != nil {
		cfg.Spec.Normalize = *md.Normalize
	}
	if md.InputName != "" {
		cfg.InputName = md.InputName
	}
	if md.OutputName != "" {
		cfg.OutputName = md.OutputName
	}

	if len(md.InputShape) > 0 && !slices.Equal(md.InputShape, cfg.Spec.Shape()) {
		return fmt.Errorf("%w: metadata input shape %v, spec shape %v", domain.ErrShapeMismatch, md.InputShape, cfg.Spec.Shape())
	}
	if len(md.OutputShape) > 0 && !slices.Equal(md.OutputShape, outputShape()) {
		return fmt.Errorf("%w: metadata output shape %v, want %v", domain.ErrShapeMismatch, md.OutputShape, outputShape())
	}
	return nil
}

func outputShape() []int64 {
	return []int64{1, int64(entity.NumLabels)}
}
