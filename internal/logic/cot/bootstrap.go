package cot

import (
	"context"
	"fmt"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/core/vector_store"
	"github.com/Malowking/finrag/core/workflow"
	"github.com/gogf/gf/v2/frame/g"
)

// InitCot 按配置组装模型、向量化、向量库和重排服务并编译工作流
// 返回的 closer 释放向量库连接
func InitCot(ctx context.Context) (func(), error) {
	chatCfg := config.LoadChatConfig(ctx)
	wfCfg := config.LoadWorkflowConfig(ctx)

	models, err := buildModels(ctx, chatCfg, wfCfg)
	if err != nil {
		return nil, err
	}

	embCfg := config.LoadEmbeddingConfig(ctx)
	embedder, err := common.NewEmbedder(ctx, embCfg.Provider, &embCfg, embCfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	indexes, closeIndexes, err := vector_store.NewNamespaceIndexes(ctx, config.LoadVectorStoreConfig(ctx))
	if err != nil {
		return nil, err
	}

	deps := workflow.Dependencies{
		Models:   models,
		Embedder: embedder,
		Indexes:  indexes,
	}

	rerankCfg := config.LoadRerankConfig(ctx)
	if rerankCfg.Enabled {
		reranker, err := common.NewReranker(ctx, &rerankCfg, rerankCfg.Timeout)
		if err != nil {
			g.Log().Warningf(ctx, "Semantic reranker unavailable, using lexical ranking only: %v", err)
		} else {
			deps.Reranker = reranker
		}
	}

	wf, err := workflow.New(ctx, deps, wfCfg)
	if err != nil {
		closeIndexes()
		return nil, err
	}
	SetWorkflow(wf)

	g.Log().Infof(ctx, "Reasoning workflow ready: chat=%s/%s, votes=%d, maxIterations=%d, reranker=%v",
		chatCfg.Provider, chatCfg.Model, wfCfg.Votes, wfCfg.MaxIterations, deps.Reranker != nil)
	return closeIndexes, nil
}

// buildModels 每个节点一个补全服务，chat.nodes 可按节点覆盖模型和温度
func buildModels(ctx context.Context, chatCfg config.ChatConfig, wfCfg config.WorkflowConfig) (workflow.Models, error) {
	completers := make(map[string]workflow.Completer, len(workflow.ModelNodes))
	for _, node := range workflow.ModelNodes {
		c, err := common.NewNodeCompleter(ctx, chatCfg, node, wfCfg)
		if err != nil {
			return workflow.Models{}, fmt.Errorf("failed to create model for node %s: %w", node, err)
		}
		completers[node] = c
	}
	return workflow.Models{
		Plan:      completers[workflow.NodePlan],
		Step:      completers[workflow.NodeStepExecute],
		Rewrite:   completers[workflow.NodeRewrite],
		Expand:    completers[workflow.NodeExpand],
		Classify:  completers[workflow.NodeClassify],
		Condense:  completers[workflow.NodeCondense],
		Generate:  completers[workflow.NodeGenerate],
		Summarize: completers[workflow.NodeSummarize],
	}, nil
}
