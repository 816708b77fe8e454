package common

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Malowking/finrag/core/errors"
	einoopenai "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// EmbeddingConfig 接口，用于提取embedding配置
type EmbeddingConfig interface {
	GetAPIKey() string
	GetBaseURL() string
	GetEmbeddingModel() string
	GetDimensions() int
}

// CustomEmbedder 适配 OpenAI 兼容 /embeddings 接口的客户端
type CustomEmbedder struct {
	apiKey     string
	endpoint   string
	model      string
	dimensions int
	httpClient *http.Client
}

var _ embedding.Embedder = (*CustomEmbedder)(nil)

// EmbeddingRequest OpenAI embedding API请求结构
type EmbeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// NewEmbedder custom 走自定义 HTTP 客户端，openai 走 eino-ext 实现
func NewEmbedder(ctx context.Context, provider string, conf EmbeddingConfig, timeout time.Duration) (embedding.Embedder, error) {
	switch strings.ToLower(provider) {
	case "", "custom":
		return NewEmbedding(ctx, conf, timeout)
	case "openai":
		if conf.GetAPIKey() == "" {
			return nil, errors.New(errors.ErrInvalidParameter, "embedding apiKey is required")
		}
		cfg := &einoopenai.EmbeddingConfig{
			APIKey:  conf.GetAPIKey(),
			BaseURL: conf.GetBaseURL(),
			Model:   conf.GetEmbeddingModel(),
			Timeout: timeout,
		}
		if dim := conf.GetDimensions(); dim > 0 {
			cfg.Dimensions = &dim
		}
		emb, err := einoopenai.NewEmbedder(ctx, cfg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrModelConfigInvalid, err, "failed to create openai embedder")
		}
		return emb, nil
	default:
		return nil, errors.Newf(errors.ErrModelConfigInvalid, "unsupported embedding provider: %s", provider)
	}
}

// NewEmbedding 创建自定义 embedding 客户端
func NewEmbedding(ctx context.Context, conf EmbeddingConfig, timeout time.Duration) (*CustomEmbedder, error) {
	var missing []string
	if conf.GetAPIKey() == "" {
		missing = append(missing, "apiKey")
	}
	if conf.GetBaseURL() == "" {
		missing = append(missing, "baseURL")
	}
	if conf.GetEmbeddingModel() == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return nil, errors.Newf(errors.ErrInvalidParameter, "embedding %s required", strings.Join(missing, ", "))
	}

	return &CustomEmbedder{
		apiKey:     conf.GetAPIKey(),
		endpoint:   strings.TrimRight(conf.GetBaseURL(), "/") + "/embeddings",
		model:      conf.GetEmbeddingModel(),
		dimensions: conf.GetDimensions(),
		httpClient: newHTTPClient(timeout),
	}, nil
}

// EmbedStrings 返回的向量顺序与输入一致，服务端可按任意顺序返回
func (e *CustomEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := embedding.GetCommonOptions(&embedding.Options{Model: &e.model}, opts...)
	req := EmbeddingRequest{Input: texts, Model: *options.Model}
	if e.dimensions > 0 {
		dim := e.dimensions
		req.Dimensions = &dim
	}

	var resp embeddingResponse
	if err := postJSON(ctx, e.httpClient, e.endpoint, e.apiKey, req, &resp, errors.ErrEmbeddingFailed); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.Newf(errors.ErrEmbeddingFailed, "got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) || vectors[d.Index] != nil {
			return nil, errors.Newf(errors.ErrEmbeddingFailed, "invalid embedding index: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// ToFloat32 向量库使用 float32
func ToFloat32(f64 []float64) []float32 {
	out := make([]float32, len(f64))
	for i, v := range f64 {
		out[i] = float32(v)
	}
	return out
}
