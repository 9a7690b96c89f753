// Package handler はdiagnosisフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/api"
	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
)

// DiagnosisUsecase は葉の画像診断のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type DiagnosisUsecase interface {
	Diagnose(ctx context.Context, imageData []byte, source entity.InputSource) (*entity.Diagnosis, error)
	Labels() []entity.LabelInfo
	History(ctx context.Context, limit, offset int) ([]entity.Diagnosis, error)
	Stats(ctx context.Context) ([]entity.LabelCount, error)
}

// DiagnosisHandler は診断のHTTPリクエストを処理します。
type DiagnosisHandler struct {
	uc     DiagnosisUsecase
	logger *zap.Logger
}

// NewDiagnosisHandler はDiagnosisHandlerの新しいインスタンスを生成します。
func NewDiagnosisHandler(uc DiagnosisUsecase, logger *zap.Logger) *DiagnosisHandler {
	return &DiagnosisHandler{uc: uc, logger: logger}
}

// Diagnose は画像をアップロードして病害を診断します。
//
// エンドポイント: POST /v1/diagnoses
// Content-Type: multipart/form-data
// フィールド: image（画像ファイル、最大10MB）, source（camera | gallery、省略時 gallery）
func (h *DiagnosisHandler) Diagnose(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		h.logger.Warn("image field missing", zap.Error(err), zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "image file is required"})
		return
	}

	source, err := entity.ParseInputSource(c.PostForm("source"))
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "source must be camera or gallery"})
		return
	}

	if file.Size > usecase.MaxImageSize {
		c.JSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "image is too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			h.logger.Warn("failed to close uploaded image", zap.Error(err))
		}
	}()

	imageData, err := io.ReadAll(io.LimitReader(f, usecase.MaxImageSize+1))
	if err != nil {
		h.logger.Error("failed to read uploaded image", zap.Error(err))
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}

	d, err := h.uc.Diagnose(c.Request.Context(), imageData, source)
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("diagnosis failed", zap.Error(err), zap.Int("status", status))
		} else {
			h.logger.Warn("diagnosis rejected", zap.Error(err), zap.Int("status", status))
		}
		c.JSON(status, api.ErrorResponse{Error: msg})
		return
	}

	c.JSON(http.StatusOK, toResponse(d))
}

// Labels はラベル表を返します。
//
// エンドポイント: GET /v1/labels
func (h *DiagnosisHandler) Labels(c *gin.Context) {
	labels := h.uc.Labels()
	out := make([]api.LabelResponse, 0, len(labels))
	for _, l := range labels {
		out = append(out, api.LabelResponse{
			Index:          l.Index,
			Label:          l.Label.String(),
			Healthy:        l.Healthy,
			Recommendation: l.Recommendation,
		})
	}
	c.JSON(http.StatusOK, out)
}

// History は診断履歴を新しい順に返します。
//
// エンドポイント: GET /v1/diagnoses?limit=&offset=
func (h *DiagnosisHandler) History(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "limit must be an integer"})
		return
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "offset must be an integer"})
		return
	}

	items, err := h.uc.History(c.Request.Context(), limit, offset)
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}

	limit, offset = usecase.NormalizePage(limit, offset)
	out := api.HistoryResponse{Items: make([]api.DiagnosisResponse, 0, len(items)), Limit: limit, Offset: offset}
	for i := range items {
		out.Items = append(out.Items, toResponse(&items[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Stats はラベルごとの診断件数を返します。
//
// エンドポイント: GET /v1/diagnoses/stats
func (h *DiagnosisHandler) Stats(c *gin.Context) {
	counts, err := h.uc.Stats(c.Request.Context())
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}

	out := api.StatsResponse{Labels: make([]api.LabelCountResponse, 0, len(counts))}
	for _, lc := range counts {
		out.Total += lc.Count
		out.Labels = append(out.Labels, api.LabelCountResponse{Label: lc.Label.String(), Count: lc.Count})
	}
	c.JSON(http.StatusOK, out)
}

func (h *DiagnosisHandler) writeHistoryError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrHistoryUnavailable) {
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "history is not enabled"})
		return
	}
	h.logger.Error("history query failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to load history"})
}

// statusFor はドメインエラーをHTTPステータスとクライアント向けメッセージに変換します。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyImage):
		return http.StatusBadRequest, "image is empty"
	case errors.Is(err, domain.ErrInvalidImage):
		return http.StatusBadRequest, "image could not be decoded"
	case errors.Is(err, domain.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "image is too large"
	case errors.Is(err, domain.ErrNotAPlant):
		return http.StatusUnprocessableEntity, "image does not appear to show a plant"
	case errors.Is(err, domain.ErrModelUnavailable):
		return http.StatusBadGateway, "model server unavailable"
	default:
		return http.StatusInternalServerError, "classification failed"
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func toResponse(d *entity.Diagnosis) api.DiagnosisResponse {
	return api.DiagnosisResponse{
		ID:      d.ID,
		Label:   d.Prediction.Label.String(),
		Healthy: d.Prediction.Label.IsHealthy(),
		Advice:  d.Advice,
		Source:  string(d.Source),
		Prediction: api.PredictionResponse{
			Index:      d.Prediction.Index,
			Label:      d.Prediction.Label.String(),
			Confidence: d.Prediction.Confidence,
			Scores:     d.Prediction.Scores,
		},
		Image: api.ImageResponse{
			Format: d.ImageFormat,
			Width:  d.ImageWidth,
			Height: d.ImageHeight,
			Digest: d.ImageDigest,
		},
		Model:     d.ModelName,
		CreatedAt: d.CreatedAt,
	}
}
