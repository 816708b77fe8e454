package common

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/core/errors"
	coreModel "github.com/Malowking/finrag/core/model"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/container/gmap"
	"github.com/gogf/gf/v2/frame/g"
)

// chatModels 按 provider/model/temperature 复用已创建的模型客户端
var chatModels = gmap.NewStrAnyMap(true)

// NewChatModel 根据配置创建 eino 对话模型
func NewChatModel(ctx context.Context, cfg config.ChatConfig) (einoModel.BaseChatModel, error) {
	if cfg.Model == "" {
		return nil, errors.New(errors.ErrModelNotConfigured, "chat model is not configured")
	}
	key := fmt.Sprintf("%s|%s|%s|%v", cfg.Provider, cfg.BaseURL, cfg.Model, cfg.Temperature)
	if cm, ok := chatModels.Get(key).(einoModel.BaseChatModel); ok && cm != nil {
		return cm, nil
	}

	var temperature *float32
	if acceptsTemperature(cfg.Model) {
		t := cfg.Temperature
		temperature = &t
	}
	var maxTokens *int
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		maxTokens = &mt
	}

	var (
		cm  einoModel.BaseChatModel
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		cm, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	case "qwen":
		cm, err = qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
	default:
		return nil, errors.Newf(errors.ErrModelConfigInvalid, "unsupported chat provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModelConfigInvalid, err, "failed to create chat model %s", cfg.Model)
	}

	g.Log().Infof(ctx, "Chat model created: provider=%s, model=%s", cfg.Provider, cfg.Model)
	chatModels.Set(key, cm)
	return cm, nil
}

// o 系列推理模型不接受 temperature 参数
func acceptsTemperature(model string) bool {
	m := strings.ToLower(model)
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(m, prefix) {
			return false
		}
	}
	return true
}

// ChatCompleter 把 eino 对话模型包装成“消息进、文本出”的补全服务，
// 每次调用带独立超时，并在同一模型上重试
type ChatCompleter struct {
	model   einoModel.BaseChatModel
	name    string
	timeout time.Duration
	retry   coreModel.RetryPolicy
}

// NewChatCompleter 创建补全适配器，retries 为首次调用之外的重试次数
func NewChatCompleter(cm einoModel.BaseChatModel, name string, timeout time.Duration, retries int, retryDelay time.Duration) *ChatCompleter {
	if retries < 0 {
		retries = 0
	}
	return &ChatCompleter{
		model:   cm,
		name:    name,
		timeout: timeout,
		retry:   coreModel.RetryPolicy{Attempts: retries + 1, Delay: retryDelay},
	}
}

// NewNodeCompleter 按节点覆盖配置创建补全适配器
func NewNodeCompleter(ctx context.Context, chat config.ChatConfig, node string, wf config.WorkflowConfig) (*ChatCompleter, error) {
	nodeCfg := chat.ForNode(node)
	cm, err := NewChatModel(ctx, nodeCfg)
	if err != nil {
		return nil, err
	}
	return NewChatCompleter(cm, nodeCfg.Model, wf.CallTimeout, wf.CallRetries, wf.RetryDelay), nil
}

// Complete 调用模型并返回去除首尾空白后的文本
func (c *ChatCompleter) Complete(ctx context.Context, messages []*schema.Message) (string, error) {
	return coreModel.Retry(ctx, c.name, c.retry, func(ctx context.Context) (string, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		resp, err := c.model.Generate(callCtx, messages)
		if err != nil {
			return "", err
		}
		text := ""
		if resp != nil {
			text = strings.TrimSpace(resp.Content)
		}
		if text == "" {
			return "", errors.Newf(errors.ErrEmptyCompletion, "model %s returned empty content", c.name)
		}
		return text, nil
	})
}
