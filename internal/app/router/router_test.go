package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/app/router"
	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/feature/diagnosis/transport/handler"
	"wheatleaf_backend/internal/platform/config"
	jwtmw "wheatleaf_backend/internal/platform/jwt"
	"wheatleaf_backend/internal/platform/ratelimiter"
)

const testSecret = "test-secret"

// stubUsecase は固定値を返すDiagnosisUsecaseの実装です。
type stubUsecase struct{}

func (stubUsecase) Diagnose(ctx context.Context, imageData []byte, source entity.InputSource) (*entity.Diagnosis, error) {
	return &entity.Diagnosis{Prediction: entity.Prediction{Label: entity.LabelHealthy}}, nil
}

func (stubUsecase) Labels() []entity.LabelInfo { return nil }

func (stubUsecase) History(ctx context.Context, limit, offset int) ([]entity.Diagnosis, error) {
	return nil, nil
}

func (stubUsecase) Stats(ctx context.Context) ([]entity.LabelCount, error) { return nil, nil }

// noHistoryUsecase は履歴が未設定のDiagnosisUsecaseの実装です。
type noHistoryUsecase struct{ stubUsecase }

func (noHistoryUsecase) History(ctx context.Context, limit, offset int) ([]entity.Diagnosis, error) {
	return nil, domain.ErrHistoryUnavailable
}

func (noHistoryUsecase) Stats(ctx context.Context) ([]entity.LabelCount, error) {
	return nil, domain.ErrHistoryUnavailable
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouterWith(t, stubUsecase{}, true)
}

func newTestRouterWith(t *testing.T, uc handler.DiagnosisUsecase, historyEnabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{AllowOrigins: []string{"http://localhost:3000"}},
		JWT:    config.JWTConfig{Secret: testSecret, Issuer: "wheatleaf"},
	}
	deps := router.Deps{
		Diagnosis: handler.NewDiagnosisHandler(uc, zap.NewNop()),
		Limiter:   ratelimiter.NewRateLimiter(100, 100),
		ModelName: "wheat_leaf",
		Runtime:   "onnx",

		HistoryEnabled: historyEnabled,
	}
	return router.NewRouter(cfg, deps, zap.NewNop())
}

// TestNewRouter_Routes はルーティングと認証要否を検証します。
func TestNewRouter_Routes(t *testing.T) {
	r := newTestRouter(t)

	token, err := jwtmw.NewGenerator(testSecret, "wheatleaf", time.Hour).GenerateToken("ops", jwtmw.ScopeHistoryRead)
	require.NoError(t, err)
	wrongScope, err := jwtmw.NewGenerator(testSecret, "wheatleaf", time.Hour).GenerateToken("ops", "other")
	require.NoError(t, err)

	tests := []struct {
		name           string
		method         string
		path           string
		token          string
		expectedStatus int
	}{
		{name: "health GET", method: http.MethodGet, path: "/healthz", expectedStatus: http.StatusOK},
		{name: "health HEAD", method: http.MethodHead, path: "/healthz", expectedStatus: http.StatusOK},
		{name: "labels are public", method: http.MethodGet, path: "/v1/labels", expectedStatus: http.StatusOK},
		{name: "history without token", method: http.MethodGet, path: "/v1/diagnoses", expectedStatus: http.StatusUnauthorized},
		{name: "history with wrong scope", method: http.MethodGet, path: "/v1/diagnoses", token: wrongScope, expectedStatus: http.StatusForbidden},
		{name: "history with token", method: http.MethodGet, path: "/v1/diagnoses", token: token, expectedStatus: http.StatusOK},
		{name: "stats with token", method: http.MethodGet, path: "/v1/diagnoses/stats", token: token, expectedStatus: http.StatusOK},
		{name: "diagnose without image", method: http.MethodPost, path: "/v1/diagnoses", expectedStatus: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, path: "/v1/unknown", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

// TestNewRouter_HistoryDisabled は履歴が無効な場合にトークンの有無によらず503を返すことを検証します。
func TestNewRouter_HistoryDisabled(t *testing.T) {
	r := newTestRouterWith(t, noHistoryUsecase{}, false)

	token, err := jwtmw.NewGenerator(testSecret, "wheatleaf", time.Hour).GenerateToken("ops", jwtmw.ScopeHistoryRead)
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
	}{
		{name: "history with token", path: "/v1/diagnoses", token: token},
		{name: "history without token", path: "/v1/diagnoses"},
		{name: "stats with token", path: "/v1/diagnoses/stats", token: token},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Contains(t, w.Body.String(), "history is not enabled")
		})
	}
}

// TestNewRouter_CORS は許可されたオリジンにCORSヘッダーが付与されることを検証します。
func TestNewRouter_CORS(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/labels", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
