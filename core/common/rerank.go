package common

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Malowking/finrag/core/errors"
)

const defaultRerankModel = "rerank-v3.5"

// RerankConfig 接口，用于提取rerank配置
type RerankConfig interface {
	GetRerankAPIKey() string
	GetRerankBaseURL() string
	GetRerankModel() string
}

// CustomReranker 兼容 Cohere /rerank 协议的客户端
type CustomReranker struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// RerankRequest rerank API请求结构
type RerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n"`
	ReturnDocuments bool     `json:"return_documents"`
}

// RerankResult Index 指向请求中的文档下标
type RerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	ID      string          `json:"id"`
	Results []*RerankResult `json:"results"`
}

// NewReranker 配置缺失时回退到 RERANK_API_KEY / RERANK_BASE_URL 环境变量
func NewReranker(ctx context.Context, conf RerankConfig, timeout time.Duration) (*CustomReranker, error) {
	apiKey := conf.GetRerankAPIKey()
	if apiKey == "" {
		apiKey = os.Getenv("RERANK_API_KEY")
	}
	baseURL := conf.GetRerankBaseURL()
	if baseURL == "" {
		baseURL = os.Getenv("RERANK_BASE_URL")
	}
	if baseURL == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "rerank baseURL is required")
	}
	model := conf.GetRerankModel()
	if model == "" {
		model = defaultRerankModel
	}

	return &CustomReranker{
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(baseURL, "/") + "/rerank",
		model:      model,
		httpClient: newHTTPClient(timeout),
	}, nil
}

// Rerank 按相关性降序返回至多 topN 个结果，重复下标只保留第一次
func (r *CustomReranker) Rerank(ctx context.Context, query string, docs []string, topN int) ([]*RerankResult, error) {
	if len(docs) == 0 {
		return []*RerankResult{}, nil
	}
	if topN <= 0 || topN > len(docs) {
		topN = len(docs)
	}

	var resp rerankResponse
	err := postJSON(ctx, r.httpClient, r.endpoint, r.apiKey, RerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: docs,
		TopN:      topN,
	}, &resp, errors.ErrRerankFailed)
	if err != nil {
		return nil, err
	}

	results := make([]*RerankResult, 0, topN)
	seen := make(map[int]struct{}, len(resp.Results))
	for _, res := range resp.Results {
		if res == nil {
			continue
		}
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, errors.Newf(errors.ErrRerankFailed, "invalid result index: %d", res.Index)
		}
		if _, dup := seen[res.Index]; dup {
			continue
		}
		seen[res.Index] = struct{}{}
		results = append(results, res)
		if len(results) == topN {
			break
		}
	}
	return results, nil
}
