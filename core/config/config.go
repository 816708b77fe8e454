package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gogf/gf/v2/frame/g"
	"github.com/gogf/gf/v2/util/gconv"
)

// ChatConfig 对话模型配置
type ChatConfig struct {
	Provider    string        // openai | qwen
	APIKey      string        // 为空时读取环境变量 OPENAI_API_KEY / DASHSCOPE_API_KEY
	BaseURL     string        // OpenAI 兼容接口地址
	Model       string        // 默认模型
	Temperature float32       // 默认温度
	MaxTokens   int           // 最大输出 token，0 表示不限制
	Timeout     time.Duration // HTTP 客户端超时
	// Nodes 按节点覆盖模型，例如 plan 使用更强的模型、classify 使用更便宜的模型
	Nodes map[string]NodeModelConfig
}

// NodeModelConfig 单个节点的模型覆盖
type NodeModelConfig struct {
	Model       string
	Temperature *float32
}

// ForNode 返回指定节点生效的模型配置
func (c *ChatConfig) ForNode(node string) ChatConfig {
	out := *c
	out.Nodes = nil
	if override, ok := c.Nodes[node]; ok {
		if override.Model != "" {
			out.Model = override.Model
		}
		if override.Temperature != nil {
			out.Temperature = *override.Temperature
		}
	}
	return out
}

// EmbeddingConfig 向量化服务配置
type EmbeddingConfig struct {
	Provider   string // custom | openai
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// EmbeddingConfig 实现 embedding config 接口
func (c *EmbeddingConfig) GetAPIKey() string         { return c.APIKey }
func (c *EmbeddingConfig) GetBaseURL() string        { return c.BaseURL }
func (c *EmbeddingConfig) GetEmbeddingModel() string { return c.Model }
func (c *EmbeddingConfig) GetDimensions() int        { return c.Dimensions }

// RerankConfig 语义重排服务配置
type RerankConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// RerankConfig 实现 rerank config 接口
func (c *RerankConfig) GetRerankAPIKey() string  { return c.APIKey }
func (c *RerankConfig) GetRerankBaseURL() string { return c.BaseURL }
func (c *RerankConfig) GetRerankModel() string   { return c.Model }

// VectorStoreConfig 向量库配置，每个命名空间对应一个集合/表
type VectorStoreConfig struct {
	Type     string // milvus | pgvector
	Milvus   MilvusConfig
	Postgres PostgresConfig
}

// MilvusConfig Milvus 连接与集合映射
type MilvusConfig struct {
	Address     string
	Database    string
	Username    string
	Password    string
	VectorField string
	Collections map[string]string // namespace -> collection
}

// PostgresConfig pgvector 连接与表映射
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Schema   string
	Tables   map[string]string // namespace -> table
}

// DSN 构建连接字符串（去掉空密码的 password= 参数）
func (c *PostgresConfig) DSN() string {
	if c.Password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode)
}

// WorkflowConfig 推理工作流参数
type WorkflowConfig struct {
	SearchTopK        int           // 向量检索候选数
	LexicalTopN       int           // BM25 预筛选保留数
	RerankTopN        int           // 语义重排保留数
	Votes             int           // 命名空间分类投票次数
	VoteConcurrency   int           // 投票并发度，1 表示顺序执行
	MaxIterations     int           // 单次运行允许进入 StepExecute 的最大次数
	CallTimeout       time.Duration // 单次外部调用超时
	CallRetries       int           // 单次外部调用重试次数（不含首次）
	RetryDelay        time.Duration // 重试间隔
	AnswerPreviewLen  int           // 消息轨迹中答案预览的最大字符数
	FallbackNamespace string        // 命名空间未映射时使用的索引
}

// DefaultWorkflowConfig 默认工作流参数
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		SearchTopK:        100,
		LexicalTopN:       50,
		RerankTopN:        10,
		Votes:             4,
		VoteConcurrency:   4,
		MaxIterations:     16,
		CallTimeout:       60 * time.Second,
		CallRetries:       2,
		RetryDelay:        500 * time.Millisecond,
		AnswerPreviewLen:  600,
		FallbackNamespace: "fund",
	}
}

// LoadChatConfig 读取 chat 配置
func LoadChatConfig(ctx context.Context) ChatConfig {
	cfg := ChatConfig{
		Provider:    g.Cfg().MustGet(ctx, "chat.provider", "openai").String(),
		APIKey:      g.Cfg().MustGet(ctx, "chat.apiKey", "").String(),
		BaseURL:     g.Cfg().MustGet(ctx, "chat.baseURL", "").String(),
		Model:       g.Cfg().MustGet(ctx, "chat.model", "gpt-4o-mini").String(),
		Temperature: g.Cfg().MustGet(ctx, "chat.temperature", 0).Float32(),
		MaxTokens:   g.Cfg().MustGet(ctx, "chat.maxTokens", 0).Int(),
		Timeout:     g.Cfg().MustGet(ctx, "chat.timeout", "2m").Duration(),
		Nodes:       make(map[string]NodeModelConfig),
	}
	if cfg.APIKey == "" {
		if strings.EqualFold(cfg.Provider, "qwen") {
			cfg.APIKey = os.Getenv("DASHSCOPE_API_KEY")
		} else {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	for node, raw := range g.Cfg().MustGet(ctx, "chat.nodes").Map() {
		m := gconv.Map(raw)
		override := NodeModelConfig{Model: gconv.String(m["model"])}
		if t, ok := m["temperature"]; ok && t != nil {
			v := gconv.Float32(t)
			override.Temperature = &v
		}
		cfg.Nodes[node] = override
	}
	return cfg
}

// LoadEmbeddingConfig 读取 embedding 配置
func LoadEmbeddingConfig(ctx context.Context) EmbeddingConfig {
	cfg := EmbeddingConfig{
		Provider:   g.Cfg().MustGet(ctx, "embedding.provider", "custom").String(),
		APIKey:     g.Cfg().MustGet(ctx, "embedding.apiKey", "").String(),
		BaseURL:    g.Cfg().MustGet(ctx, "embedding.baseURL", "").String(),
		Model:      g.Cfg().MustGet(ctx, "embedding.model", "").String(),
		Dimensions: g.Cfg().MustGet(ctx, "embedding.dimensions", 1024).Int(),
		Timeout:    g.Cfg().MustGet(ctx, "embedding.timeout", "1m").Duration(),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("EMBEDDING_API_KEY")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg
}

// LoadRerankConfig 读取 rerank 配置
func LoadRerankConfig(ctx context.Context) RerankConfig {
	return RerankConfig{
		Enabled: g.Cfg().MustGet(ctx, "rerank.enabled", true).Bool(),
		APIKey:  g.Cfg().MustGet(ctx, "rerank.apiKey", "").String(),
		BaseURL: g.Cfg().MustGet(ctx, "rerank.baseURL", "").String(),
		Model:   g.Cfg().MustGet(ctx, "rerank.model", "rerank-v3.5").String(),
		Timeout: g.Cfg().MustGet(ctx, "rerank.timeout", "1m").Duration(),
	}
}

// LoadVectorStoreConfig 读取向量库配置
func LoadVectorStoreConfig(ctx context.Context) VectorStoreConfig {
	return VectorStoreConfig{
		Type: g.Cfg().MustGet(ctx, "vectorStore.type", "milvus").String(),
		Milvus: MilvusConfig{
			Address:     g.Cfg().MustGet(ctx, "milvus.address", "").String(),
			Database:    g.Cfg().MustGet(ctx, "milvus.database", "default").String(),
			Username:    g.Cfg().MustGet(ctx, "milvus.username", "").String(),
			Password:    g.Cfg().MustGet(ctx, "milvus.password", "").String(),
			VectorField: g.Cfg().MustGet(ctx, "milvus.vectorField", "vector").String(),
			Collections: g.Cfg().MustGet(ctx, "milvus.collections").MapStrStr(),
		},
		Postgres: PostgresConfig{
			Host:     g.Cfg().MustGet(ctx, "postgres.host", "").String(),
			Port:     g.Cfg().MustGet(ctx, "postgres.port", "5432").String(),
			User:     g.Cfg().MustGet(ctx, "postgres.user", "").String(),
			Password: g.Cfg().MustGet(ctx, "postgres.password", "").String(),
			Database: g.Cfg().MustGet(ctx, "postgres.database", "").String(),
			SSLMode:  g.Cfg().MustGet(ctx, "postgres.sslmode", "disable").String(),
			Schema:   g.Cfg().MustGet(ctx, "postgres.schema", "vectors").String(),
			Tables:   g.Cfg().MustGet(ctx, "postgres.tables").MapStrStr(),
		},
	}
}

// LoadWorkflowConfig 读取工作流配置，缺省项使用默认值
func LoadWorkflowConfig(ctx context.Context) WorkflowConfig {
	d := DefaultWorkflowConfig()
	return WorkflowConfig{
		SearchTopK:        g.Cfg().MustGet(ctx, "workflow.searchTopK", d.SearchTopK).Int(),
		LexicalTopN:       g.Cfg().MustGet(ctx, "workflow.lexicalTopN", d.LexicalTopN).Int(),
		RerankTopN:        g.Cfg().MustGet(ctx, "workflow.rerankTopN", d.RerankTopN).Int(),
		Votes:             g.Cfg().MustGet(ctx, "workflow.votes", d.Votes).Int(),
		VoteConcurrency:   g.Cfg().MustGet(ctx, "workflow.voteConcurrency", d.VoteConcurrency).Int(),
		MaxIterations:     g.Cfg().MustGet(ctx, "workflow.maxIterations", d.MaxIterations).Int(),
		CallTimeout:       g.Cfg().MustGet(ctx, "workflow.callTimeout", d.CallTimeout.String()).Duration(),
		CallRetries:       g.Cfg().MustGet(ctx, "workflow.callRetries", d.CallRetries).Int(),
		RetryDelay:        g.Cfg().MustGet(ctx, "workflow.retryDelay", d.RetryDelay.String()).Duration(),
		AnswerPreviewLen:  g.Cfg().MustGet(ctx, "workflow.answerPreviewLen", d.AnswerPreviewLen).Int(),
		FallbackNamespace: g.Cfg().MustGet(ctx, "workflow.fallbackNamespace", d.FallbackNamespace).String(),
	}
}

// Validate 检查工作流参数是否合法
func (c WorkflowConfig) Validate() error {
	var problems []string
	if c.SearchTopK <= 0 {
		problems = append(problems, "workflow.searchTopK must be positive")
	}
	if c.LexicalTopN <= 0 {
		problems = append(problems, "workflow.lexicalTopN must be positive")
	}
	if c.RerankTopN <= 0 {
		problems = append(problems, "workflow.rerankTopN must be positive")
	}
	if c.Votes <= 0 {
		problems = append(problems, "workflow.votes must be positive")
	}
	if c.MaxIterations <= 0 {
		problems = append(problems, "workflow.maxIterations must be positive")
	}
	if c.CallTimeout <= 0 {
		problems = append(problems, "workflow.callTimeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid workflow configuration:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateConfiguration validates all required configuration items
func ValidateConfiguration(ctx context.Context) error {
	var missingConfigs []string
	var warnings []string

	// 验证 Chat 配置
	chat := LoadChatConfig(ctx)
	if chat.APIKey == "" {
		missingConfigs = append(missingConfigs, "chat.apiKey (or OPENAI_API_KEY)")
	}
	if chat.Model == "" {
		missingConfigs = append(missingConfigs, "chat.model")
	}
	if p := strings.ToLower(chat.Provider); p != "openai" && p != "qwen" {
		missingConfigs = append(missingConfigs, fmt.Sprintf("chat.provider (unsupported: %s)", chat.Provider))
	}

	// 验证 Embedding 配置
	emb := LoadEmbeddingConfig(ctx)
	if emb.APIKey == "" {
		missingConfigs = append(missingConfigs, "embedding.apiKey")
	}
	if emb.Model == "" {
		missingConfigs = append(missingConfigs, "embedding.model")
	}
	if emb.BaseURL == "" && emb.Provider == "custom" {
		missingConfigs = append(missingConfigs, "embedding.baseURL")
	}

	// 验证 Rerank 配置，缺失时退化为纯 BM25 排序
	rerank := LoadRerankConfig(ctx)
	if rerank.Enabled && rerank.BaseURL == "" && os.Getenv("RERANK_BASE_URL") == "" {
		warnings = append(warnings, "rerank.baseURL is not set, semantic rerank will fall back to lexical order")
	}

	// 验证向量库配置
	vs := LoadVectorStoreConfig(ctx)
	switch strings.ToLower(vs.Type) {
	case "milvus":
		if vs.Milvus.Address == "" {
			missingConfigs = append(missingConfigs, "milvus.address")
		}
		if len(vs.Milvus.Collections) == 0 {
			missingConfigs = append(missingConfigs, "milvus.collections")
		}
	case "pgvector", "postgres", "postgresql":
		if vs.Postgres.Host == "" || vs.Postgres.User == "" || vs.Postgres.Database == "" {
			missingConfigs = append(missingConfigs, "postgres.host/user/database")
		}
		if len(vs.Postgres.Tables) == 0 {
			missingConfigs = append(missingConfigs, "postgres.tables")
		}
	default:
		missingConfigs = append(missingConfigs, fmt.Sprintf("vectorStore.type (unsupported: %s)", vs.Type))
	}

	if err := LoadWorkflowConfig(ctx).Validate(); err != nil {
		missingConfigs = append(missingConfigs, err.Error())
	}

	if g.Cfg().MustGet(ctx, "redis.enabled", false).Bool() &&
		g.Cfg().MustGet(ctx, "redis.address", "").String() == "" {
		warnings = append(warnings, "redis.enabled is true but redis.address is not set, using localhost:6379")
	}

	// 输出警告信息
	if len(warnings) > 0 {
		g.Log().Warningf(ctx, "Configuration warnings:\n- %s", strings.Join(warnings, "\n- "))
	}

	// 检查是否有缺失的必需配置
	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configuration items:\n- %s\n\nPlease check your config.yaml file and ensure all required settings are properly configured", strings.Join(missingConfigs, "\n- "))
	}

	// 输出成功信息
	g.Log().Info(ctx, "✓ All required configuration items are present")

	return nil
}
