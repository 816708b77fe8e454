package common

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Malowking/finrag/core/errors"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEmbeddingConfig struct {
	apiKey, baseURL, model string
	dim                    int
}

func (m *mockEmbeddingConfig) GetAPIKey() string         { return m.apiKey }
func (m *mockEmbeddingConfig) GetBaseURL() string        { return m.baseURL }
func (m *mockEmbeddingConfig) GetEmbeddingModel() string { return m.model }
func (m *mockEmbeddingConfig) GetDimensions() int        { return m.dim }

func TestEmbedStringsRestoresInputOrder(t *testing.T) {
	var got EmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.3,0.4]},{"index":0,"embedding":[0.1,0.2]}],"model":"m"}`))
	}))
	defer srv.Close()

	emb, err := NewEmbedding(context.Background(), &mockEmbeddingConfig{apiKey: "k", baseURL: srv.URL + "/", model: "m", dim: 2}, time.Second)
	require.NoError(t, err)

	vectors, err := emb.EmbedStrings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float64{0.3, 0.4}, vectors[1])

	require.NotNil(t, got.Dimensions)
	assert.Equal(t, 2, *got.Dimensions)
	assert.Equal(t, "m", got.Model)
}

func TestEmbedStringsLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	emb, err := NewEmbedding(context.Background(), &mockEmbeddingConfig{apiKey: "k", baseURL: srv.URL, model: "m"}, time.Second)
	require.NoError(t, err)

	_, err = emb.EmbedStrings(context.Background(), []string{"q"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrEmbeddingFailed))
}

func TestNewEmbedderValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewEmbedder(ctx, "custom", &mockEmbeddingConfig{baseURL: "http://x", model: "m"}, time.Second)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidParameter))

	_, err = NewEmbedder(ctx, "bogus", &mockEmbeddingConfig{apiKey: "k"}, time.Second)
	assert.True(t, errors.HasCode(err, errors.ErrModelConfigInvalid))

	emb, err := NewEmbedder(ctx, "", &mockEmbeddingConfig{apiKey: "k", baseURL: "http://x", model: "m"}, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &CustomEmbedder{}, emb)
}

func TestToFloat32(t *testing.T) {
	assert.Equal(t, []float32{0.5, -1}, ToFloat32([]float64{0.5, -1}))
}
