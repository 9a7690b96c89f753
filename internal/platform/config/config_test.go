package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheatleaf_backend/internal/platform/preprocess"
)

// TestLoad_Defaults は環境変数が無い場合に既定値で読み込まれることを検証します。
func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, RuntimeONNX, cfg.Model.Runtime)
	assert.Equal(t, 128, cfg.Model.ImageSize)
	assert.False(t, cfg.Model.Normalize)
	assert.False(t, cfg.Cache.Enabled())
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Empty(t, cfg.DB.Driver)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowOrigins)

	spec, err := cfg.Model.Spec()
	require.NoError(t, err)
	assert.Equal(t, preprocess.DefaultSpec(), spec)
}

// TestLoad_FromEnv は環境変数が既定値を上書きすることを検証します。
func TestLoad_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MODEL_RUNTIME", "TFServing")
	t.Setenv("MODEL_IMAGE_SIZE", "224")
	t.Setenv("MODEL_LAYOUT", "nchw")
	t.Setenv("MODEL_NORMALIZE", "true")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, RuntimeTFServing, cfg.Model.Runtime)
	assert.True(t, cfg.Cache.Enabled())
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, DriverSQLite, cfg.DB.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowOrigins)

	spec, err := cfg.Model.Spec()
	require.NoError(t, err)
	assert.Equal(t, preprocess.Spec{Width: 224, Height: 224, Layout: preprocess.LayoutNCHW, Normalize: true}, spec)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown runtime", map[string]string{"MODEL_RUNTIME": "tflite"}},
		{"unknown layout", map[string]string{"MODEL_LAYOUT": "CHW"}},
		{"zero image size", map[string]string{"MODEL_IMAGE_SIZE": "0"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}},
		{"history without jwt secret", map[string]string{"DB_DRIVER": "postgres"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
