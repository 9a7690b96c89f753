// Package usecase はdiagnosisフィーチャーのビジネスロジックを実装します。
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/platform/preprocess"
)

const (
	// MaxImageSize は画像アップロードの最大サイズ（10MB）です。
	MaxImageSize = 10 * 1024 * 1024
	// DefaultHistoryLimit は履歴取得時の既定件数です。
	DefaultHistoryLimit = 50
	// MaxHistoryLimit は履歴取得時の最大件数です。
	MaxHistoryLimit = 500
)

// Classifier は画像バイト列を病害ラベルに分類するインターフェースです。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type Classifier interface {
	Classify(ctx context.Context, data []byte) (entity.Prediction, preprocess.Info, error)
	ModelName() string
}

// SubjectGate は画像に植物が写っているかを判定するインターフェースです。
type SubjectGate interface {
	IsPlant(ctx context.Context, data []byte) (bool, error)
}

// Advisor は病害ラベルに対する対処方法を生成するインターフェースです。
type Advisor interface {
	Advise(ctx context.Context, label entity.Label) (string, error)
}

// HistoryRepository は診断履歴の永続化インターフェースです。
type HistoryRepository interface {
	Create(ctx context.Context, d *entity.Diagnosis) error
	List(ctx context.Context, limit, offset int) ([]entity.Diagnosis, error)
	CountByLabel(ctx context.Context) (map[entity.Label]int64, error)
}

// diagnosisUsecase は葉の画像診断のビジネスロジックを提供します。
// gate, advisor, history は任意で、nil の場合はその処理を省略します。
type diagnosisUsecase struct {
	classifier Classifier
	gate       SubjectGate
	advisor    Advisor
	history    HistoryRepository
	logger     *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewDiagnosisUsecase はdiagnosisUsecaseの新しいインスタンスを生成します。
func NewDiagnosisUsecase(c Classifier, gate SubjectGate, advisor Advisor, history HistoryRepository, logger *zap.Logger) *diagnosisUsecase {
	return &diagnosisUsecase{
		classifier: c,
		gate:       gate,
		advisor:    advisor,
		history:    history,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Diagnose は画像を検証・分類し、推奨メッセージ付きの診断結果を返します。
func (u *diagnosisUsecase) Diagnose(ctx context.Context, imageData []byte, source entity.InputSource) (*entity.Diagnosis, error) {
	if len(imageData) == 0 {
		return nil, domain.ErrEmptyImage
	}
	if len(imageData) > MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds maximum of %d bytes", domain.ErrImageTooLarge, len(imageData), MaxImageSize)
	}

	if u.gate != nil {
		ok, err := u.gate.IsPlant(ctx, imageData)
		switch {
		case err != nil:
			// 判定できない場合は分類を続行する
			u.logger.Warn("subject gate failed, continuing without it", zap.Error(err))
		case !ok:
			return nil, domain.ErrNotAPlant
		}
	}

	pred, info, err := u.classifier.Classify(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	d := &entity.Diagnosis{
		ID:          u.newID(),
		Prediction:  pred,
		Source:      source,
		Advice:      u.advise(ctx, pred.Label),
		ImageFormat: info.Format,
		ImageWidth:  info.Width,
		ImageHeight: info.Height,
		ImageDigest: preprocess.Digest(imageData),
		ModelName:   u.classifier.ModelName(),
		CreatedAt:   u.now().UTC(),
	}

	if u.history != nil {
		if err := u.history.Create(ctx, d); err != nil {
			u.logger.Error("failed to record diagnosis", zap.String("id", d.ID), zap.Error(err))
		}
	}

	u.logger.Info("diagnosis completed",
		zap.String("id", d.ID),
		zap.String("label", pred.Label.String()),
		zap.Float32("confidence", pred.Confidence),
		zap.String("source", string(source)),
	)
	return d, nil
}

// advise は対処方法を返します。生成に失敗した場合は定型メッセージにフォールバックします。
func (u *diagnosisUsecase) advise(ctx context.Context, label entity.Label) string {
	canned := label.Recommendation()
	if u.advisor == nil || label.IsHealthy() {
		return canned
	}
	advice, err := u.advisor.Advise(ctx, label)
	if err != nil || advice == "" {
		u.logger.Warn("advisor failed, using canned recommendation", zap.String("label", label.String()), zap.Error(err))
		return canned
	}
	return advice
}

// Labels はラベル表を推奨メッセージ付きで返します。
func (u *diagnosisUsecase) Labels() []entity.LabelInfo {
	labels := entity.Labels()
	out := make([]entity.LabelInfo, 0, len(labels))
	for i, l := range labels {
		out = append(out, entity.LabelInfo{
			Index:          i,
			Label:          l,
			Healthy:        l.IsHealthy(),
			Recommendation: l.Recommendation(),
		})
	}
	return out
}

// History は診断履歴を新しい順に返します。
func (u *diagnosisUsecase) History(ctx context.Context, limit, offset int) ([]entity.Diagnosis, error) {
	if u.history == nil {
		return nil, domain.ErrHistoryUnavailable
	}
	limit, offset = NormalizePage(limit, offset)
	out, err := u.history.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// NormalizePage は履歴取得のlimit/offsetを既定値・上限に丸めます。
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Stats はラベルごとの診断件数をラベル表の順で返します。
func (u *diagnosisUsecase) Stats(ctx context.Context) ([]entity.LabelCount, error) {
	if u.history == nil {
		return nil, domain.ErrHistoryUnavailable
	}
	counts, err := u.history.CountByLabel(ctx)
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	labels := entity.Labels()
	out := make([]entity.LabelCount, 0, len(labels))
	for _, l := range labels {
		out = append(out, entity.LabelCount{Label: l, Count: counts[l]})
	}
	return out, nil
}
