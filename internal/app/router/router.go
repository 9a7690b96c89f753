package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	diagnosishandler "wheatleaf_backend/internal/feature/diagnosis/transport/handler"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
	"wheatleaf_backend/internal/platform/config"
	"wheatleaf_backend/internal/platform/http/handler"
	"wheatleaf_backend/internal/platform/http/middleware"
	jwtmw "wheatleaf_backend/internal/platform/jwt"
	"wheatleaf_backend/internal/platform/ratelimiter"
)

// Deps are the components the router mounts.
type Deps struct {
	Diagnosis *diagnosishandler.DiagnosisHandler
	Limiter   *ratelimiter.RateLimiter
	ModelName string
	Runtime   string

	// HistoryEnabled is false when no database is configured.
	HistoryEnabled bool
}

func NewRouter(cfg *config.Config, deps Deps, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))
	r.Use(cors.New(corsConfig(cfg.Server.AllowOrigins)))

	// multipartのメモリ上限。超過分は一時ファイルに書き出される
	r.MaxMultipartMemory = usecase.MaxImageSize

	// 認証不要
	// 導通確認用
	health := handler.Health(deps.ModelName, deps.Runtime)
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)
	r.OPTIONS("/healthz", health)

	v1 := r.Group("/v1")
	v1.GET("/labels", deps.Diagnosis.Labels)
	// 推論はコストが高いのでクライアントIPごとにレート制限する
	v1.POST("/diagnoses", deps.Limiter.Middleware(), deps.Diagnosis.Diagnose)

	// 認証必須のルート
	// 履歴は運用者向けなのでスコープ付きJWTが必要
	// 履歴が無効な場合はJWTを検証せず、ハンドラーが503を返す
	auth := v1.Group("/diagnoses")
	if deps.HistoryEnabled {
		auth.Use(jwtmw.AuthRequired(cfg.JWT.Secret, cfg.JWT.Issuer, jwtmw.ScopeHistoryRead))
	}
	{
		auth.GET("", deps.Diagnosis.History)
		auth.GET("/stats", deps.Diagnosis.Stats)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}
