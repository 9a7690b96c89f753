package onnx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/platform/preprocess"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func zeroTensor(spec preprocess.Spec) preprocess.Tensor {
	shape := spec.Shape()
	t := preprocess.Tensor{Shape: shape, Layout: spec.Layout}
	t.Data = make([]float32, t.Len())
	return t
}

// TestRuntime_Predict_ModelNotFound はモデルファイルが無い場合にランタイムへ触れず ErrModelNotFound を返すことを検証します。
func TestRuntime_Predict_ModelNotFound(t *testing.T) {
	r, err := NewRuntime(Config{
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
		Spec:      preprocess.DefaultSpec(),
	}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = r.Predict(context.Background(), zeroTensor(preprocess.DefaultSpec()))
		assert.ErrorIs(t, err, domain.ErrModelNotFound)
	}
	assert.Nil(t, r.session, "failed load must not be memoized")
	assert.False(t, environment.ready)
}

func TestRuntime_Predict_ShapeMismatch(t *testing.T) {
	r, err := NewRuntime(Config{ModelPath: "model.onnx", Spec: preprocess.DefaultSpec()}, zap.NewNop())
	require.NoError(t, err)

	other := preprocess.Spec{Width: 64, Height: 64, Layout: preprocess.LayoutNHWC}
	_, err = r.Predict(context.Background(), zeroTensor(other))
	assert.ErrorIs(t, err, domain.ErrShapeMismatch)

	bad := zeroTensor(preprocess.DefaultSpec())
	bad.Data = bad.Data[:10]
	_, err = r.Predict(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrShapeMismatch)
}

func TestRuntime_Predict_CanceledContext(t *testing.T) {
	r, err := NewRuntime(Config{ModelPath: "model.onnx", Spec: preprocess.DefaultSpec()}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Predict(ctx, zeroTensor(preprocess.DefaultSpec()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRuntime_Defaults(t *testing.T) {
	r, err := NewRuntime(Config{ModelPath: "/models/wheat_v2.onnx", Spec: preprocess.DefaultSpec()}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "wheat_v2", r.Name())
	assert.Equal(t, DefaultInputName, r.cfg.InputName)
	assert.Equal(t, DefaultOutputName, r.cfg.OutputName)
	assert.Equal(t, preprocess.DefaultSpec(), r.Spec())

	_, err = NewRuntime(Config{Spec: preprocess.DefaultSpec()}, zap.NewNop())
	assert.Error(t, err)
}

// TestNewRuntime_Metadata はmetadata.jsonの反映と検証を検証します。
func TestNewRuntime_Metadata(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		wantSpec preprocess.Spec
		wantIn   string
		wantErr  error
	}{
		{
			name: "pytorch variant",
			metadata: `{"input_shape":[1,3,224,224],"output_shape":[1,5],` +
				`"classes":["Brown_rust","Healthy","Loose_Smut","Yellow_rust","septoria"],` +
				`"image_size":224,"layout":"nchw","normalize":true,"input_name":"pixel_values"}`,
			wantSpec: preprocess.Spec{Width: 224, Height: 224, Layout: preprocess.LayoutNCHW, Normalize: true},
			wantIn:   "pixel_values",
		},
		{
			name:     "empty metadata keeps config",
			metadata: `{}`,
			wantSpec: preprocess.DefaultSpec(),
			wantIn:   DefaultInputName,
		},
		{
			name:     "unknown class",
			metadata: `{"classes":["Brown_rust","Healthy","Loose_Smut","Yellow_rust","Stem_rust"]}`,
			wantErr:  domain.ErrUnknownLabel,
		},
		{
			name:     "classes out of order",
			metadata: `{"classes":["Healthy","Brown_rust","Loose_Smut","Yellow_rust","Septoria"]}`,
			wantErr:  domain.ErrUnknownLabel,
		},
		{
			name:     "too few classes",
			metadata: `{"classes":["Healthy"]}`,
			wantErr:  domain.ErrUnknownLabel,
		},
		{
			name:     "input shape disagrees",
			metadata: `{"input_shape":[1,224,224,3]}`,
			wantErr:  domain.ErrShapeMismatch,
		},
		{
			name:     "output shape disagrees",
			metadata: `{"output_shape":[1,7]}`,
			wantErr:  domain.ErrShapeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "metadata.json", tt.metadata)
			r, err := NewRuntime(Config{
				ModelPath:    "model.onnx",
				MetadataPath: path,
				Spec:         preprocess.DefaultSpec(),
			}, zap.NewNop())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSpec, r.Spec())
			assert.Equal(t, tt.wantIn, r.cfg.InputName)
		})
	}
}

func TestLoadMetadata_Errors(t *testing.T) {
	_, err := LoadMetadata(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)

	_, err = LoadMetadata(writeFile(t, "bad.json", "{"))
	assert.Error(t, err)
}

func TestRuntime_CloseWithoutLoad(t *testing.T) {
	r, err := NewRuntime(Config{ModelPath: "model.onnx", Spec: preprocess.DefaultSpec()}, zap.NewNop())
	require.NoError(t, err)
	assert.NotPanics(t, r.Close)
}
