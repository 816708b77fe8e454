package workflow

import (
	"context"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/config"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/core/vector_store"
	pkgSchema "github.com/Malowking/finrag/pkg/schema"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// 节点名称，同时用于按节点覆盖模型配置和指标标签
const (
	NodePlan        = "plan"
	NodeStepExecute = "step_execute"
	NodeRewrite     = "rewrite"
	NodeExpand      = "expand"
	NodeClassify    = "classify"
	NodeSearch      = "search"
	NodeRerank      = "rerank"
	NodeCondense    = "condense"
	NodeGenerate    = "generate"
	NodeSummarize   = "summarize"
)

// ModelNodes 需要语言模型的节点
var ModelNodes = []string{
	NodePlan, NodeStepExecute, NodeRewrite, NodeExpand,
	NodeClassify, NodeCondense, NodeGenerate, NodeSummarize,
}

// Completer 消息进、文本出的补全服务
type Completer interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
}

// SemanticReranker 语义重排服务，返回按相关性降序排列的下标
type SemanticReranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]*common.RerankResult, error)
}

// Models 每个节点独立注入的补全服务
type Models struct {
	Plan      Completer
	Step      Completer
	Rewrite   Completer
	Expand    Completer
	Classify  Completer
	Condense  Completer
	Generate  Completer
	Summarize Completer
}

// SameModel 所有节点共用同一个补全服务
func SameModel(c Completer) Models {
	return Models{
		Plan: c, Step: c, Rewrite: c, Expand: c,
		Classify: c, Condense: c, Generate: c, Summarize: c,
	}
}

// Dependencies 工作流的外部依赖
type Dependencies struct {
	Models   Models
	Embedder embedding.Embedder
	Indexes  vector_store.NamespaceIndexes
	// Reranker 为空时只使用 BM25 排序结果
	Reranker SemanticReranker
}

func (d Dependencies) validate() error {
	m := d.Models
	for name, c := range map[string]Completer{
		NodePlan: m.Plan, NodeStepExecute: m.Step, NodeRewrite: m.Rewrite, NodeExpand: m.Expand,
		NodeClassify: m.Classify, NodeCondense: m.Condense, NodeGenerate: m.Generate, NodeSummarize: m.Summarize,
	} {
		if c == nil {
			return errors.Newf(errors.ErrModelNotConfigured, "completer for node %s is not configured", name)
		}
	}
	if d.Embedder == nil {
		return errors.New(errors.ErrModelNotConfigured, "embedder is not configured")
	}
	if len(d.Indexes) == 0 {
		return errors.New(errors.ErrVectorStoreNotFound, "no namespace index is configured")
	}
	return nil
}

// Observer 每个节点完成后收到一次状态快照
type Observer func(snapshot *Snapshot)

// Snapshot 节点完成后的状态副本
type Snapshot struct {
	ThreadID string    `json:"thread_id"`
	Seq      int       `json:"seq"`
	Node     string    `json:"node"`
	State    *RunState `json:"state"`
	Final    bool      `json:"final,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// RunRequest 一次运行的输入
type RunRequest struct {
	ThreadID string
	Query    string
	Observer Observer
}

// Workflow 多步推理工作流
type Workflow struct {
	deps     Dependencies
	cfg      config.WorkflowConfig
	bm25     common.BM25Parameters
	runnable compose.Runnable[*RunState, *RunState]
}

// New 校验依赖并编译工作流图
func New(ctx context.Context, deps Dependencies, cfg config.WorkflowConfig) (*Workflow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigInvalid, err, "invalid workflow configuration")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.VoteConcurrency <= 0 {
		cfg.VoteConcurrency = 1
	}

	w := &Workflow{
		deps: deps,
		cfg:  cfg,
		bm25: common.DefaultBM25Parameters(),
	}
	r, err := w.buildGraph(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrWorkflowBuild, err, "failed to compile reasoning graph")
	}
	w.runnable = r
	return w, nil
}

// Run 同步执行一次完整运行
// 致命错误时返回已累积的部分状态和错误
func (w *Workflow) Run(ctx context.Context, req RunRequest) (*RunState, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New(errors.ErrInvalidParameter, "query cannot be empty")
	}

	state := NewRunState(req.ThreadID, strings.TrimSpace(req.Query))
	scope := &runScope{threadID: req.ThreadID, observer: req.Observer}
	ctx = withRunScope(ctx, scope)

	start := time.Now()
	g.Log().Infof(ctx, "Reasoning run started, thread=%s, query=%s", req.ThreadID, state.Query)

	out, err := w.runnable.Invoke(ctx, state)
	if out != nil {
		state = out
	}

	if err != nil {
		if scope.fatal != nil {
			err = scope.fatal
		} else if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Wrap(errors.ErrRunCancelled, ctxErr, "run cancelled")
		} else if stdErrors.Is(err, compose.ErrExceedMaxSteps) {
			err = errors.Wrapf(errors.ErrIterationCeiling, err, "graph exceeded its step budget after %d iterations", scope.iterations)
		} else {
			err = errors.Wrap(errors.ErrInternalError, err, "reasoning graph failed")
		}
		runsTotal.WithLabelValues(runStatus(err)).Inc()
		g.Log().Errorf(ctx, "Reasoning run aborted, thread=%s, elapsed=%v, err=%v", req.ThreadID, time.Since(start), err)
		return state, err
	}

	runsTotal.WithLabelValues("completed").Inc()
	g.Log().Infof(ctx, "Reasoning run completed, thread=%s, steps=%d, elapsed=%v", req.ThreadID, len(state.AllAnswers), time.Since(start))
	return state, nil
}

// Stream 异步执行并按节点顺序推送快照，最后一个快照的 Final 为 true
func (w *Workflow) Stream(ctx context.Context, req RunRequest) *pkgSchema.StreamReader[*Snapshot] {
	reader, writer := pkgSchema.Pipe[*Snapshot](16)

	inner := req.Observer
	req.Observer = func(snapshot *Snapshot) {
		if inner != nil {
			inner(snapshot)
		}
		writer.Send(snapshot, nil)
	}

	common.SafeGo(ctx, "reasoning-stream", func() {
		defer writer.Close()

		state, err := w.Run(ctx, req)
		final := &Snapshot{
			ThreadID: req.ThreadID,
			Node:     compose.END,
			State:    state.Clone(),
			Final:    true,
		}
		if err != nil {
			final.Error = err.Error()
		}
		if inner != nil {
			inner(final)
		}
		writer.Send(final, nil)
	})
	return reader
}

func runStatus(err error) string {
	appErr := errors.GetAppError(err)
	if appErr == nil {
		return "failed"
	}
	switch appErr.Code {
	case errors.ErrRunCancelled:
		return "cancelled"
	case errors.ErrIterationCeiling:
		return "iteration_ceiling"
	case errors.ErrInvariantViolation:
		return "invariant_violation"
	}
	return "failed"
}

// degrade 记录可恢复错误：节点输出回退到输入，运行继续
func (w *Workflow) degrade(ctx context.Context, s *RunState, node, message string, err error) {
	stepFailures.WithLabelValues(node).Inc()
	g.Log().Warningf(ctx, "[%s] %s: %v", node, message, err)
	s.warn(node, message+": "+err.Error())
}

// failStep 记录可恢复错误：本次迭代剩余节点透传，Generate 记录跳过
func (w *Workflow) failStep(ctx context.Context, s *RunState, node string, err error) {
	stepFailures.WithLabelValues(node).Inc()
	g.Log().Errorf(ctx, "[%s] step %d failed: %v", node, s.CurrentStep+1, err)
	s.failStep(node, err)
}
