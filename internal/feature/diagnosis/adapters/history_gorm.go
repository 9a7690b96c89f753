package adapters

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
)

type historyGorm struct {
	db *gorm.DB
}

var _ usecase.HistoryRepository = (*historyGorm)(nil)

func NewHistoryRepository(db *gorm.DB) *historyGorm {
	return &historyGorm{db: db}
}

// DiagnosisModel は診断履歴の1行です。画像そのものは保存しません。
type DiagnosisModel struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Label       string    `gorm:"size:32;not null;index"`
	LabelIndex  int       `gorm:"not null"`
	Confidence  float32   `gorm:"not null"`
	Source      string    `gorm:"size:16;not null"`
	ImageFormat string    `gorm:"size:16"`
	ImageWidth  int       `gorm:"not null;default:0"`
	ImageHeight int       `gorm:"not null;default:0"`
	ImageDigest string    `gorm:"size:64;not null;index"`
	ModelName   string    `gorm:"size:128"`
	Advice      string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (DiagnosisModel) TableName() string {
	return "diagnoses"
}

func toModel(d *entity.Diagnosis) DiagnosisModel {
	return DiagnosisModel{
		ID:          d.ID,
		Label:       string(d.Prediction.Label),
		LabelIndex:  d.Prediction.Index,
		Confidence:  d.Prediction.Confidence,
		Source:      string(d.Source),
		ImageFormat: d.ImageFormat,
		ImageWidth:  d.ImageWidth,
		ImageHeight: d.ImageHeight,
		ImageDigest: d.ImageDigest,
		ModelName:   d.ModelName,
		Advice:      d.Advice,
		CreatedAt:   d.CreatedAt,
	}
}

func toEntity(m DiagnosisModel) entity.Diagnosis {
	return entity.Diagnosis{
		ID: m.ID,
		Prediction: entity.Prediction{
			Index:      m.LabelIndex,
			Label:      entity.Label(m.Label),
			Confidence: m.Confidence,
		},
		Source:      entity.InputSource(m.Source),
		Advice:      m.Advice,
		ImageFormat: m.ImageFormat,
		ImageWidth:  m.ImageWidth,
		ImageHeight: m.ImageHeight,
		ImageDigest: m.ImageDigest,
		ModelName:   m.ModelName,
		CreatedAt:   m.CreatedAt,
	}
}

func (r *historyGorm) Create(ctx context.Context, d *entity.Diagnosis) error {
	m := toModel(d)
	return r.db.WithContext(ctx).Create(&m).Error
}

// List は作成日時の新しい順に履歴を返します。
func (r *historyGorm) List(ctx context.Context, limit, offset int) ([]entity.Diagnosis, error) {
	var rows []DiagnosisModel
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Diagnosis, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out, nil
}

// CountByLabel はラベルごとの件数を返します。件数0のラベルも含みます。
func (r *historyGorm) CountByLabel(ctx context.Context) (map[entity.Label]int64, error) {
	var rows []struct {
		Label string
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&DiagnosisModel{}).
		Select("label, COUNT(*) AS count").
		Group("label").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count diagnoses by label: %w", err)
	}

	out := make(map[entity.Label]int64, entity.NumLabels)
	for _, l := range entity.Labels() {
		out[l] = 0
	}
	for _, row := range rows {
		out[entity.Label(row.Label)] = row.Count
	}
	return out, nil
}
