package workflow

import (
	"context"
	"time"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/errors"
	"github.com/cloudwego/eino/compose"
	"github.com/gogf/gf/v2/frame/g"
)

type nodeFunc func(ctx context.Context, s *RunState) (*RunState, error)

type runScopeKey struct{}

// runScope 单次运行内跨节点共享的控制信息，不属于业务状态
type runScope struct {
	threadID   string
	observer   Observer
	seq        int
	iterations int
	fatal      error
}

func withRunScope(ctx context.Context, scope *runScope) context.Context {
	return context.WithValue(ctx, runScopeKey{}, scope)
}

func runScopeFrom(ctx context.Context) *runScope {
	if scope, ok := ctx.Value(runScopeKey{}).(*runScope); ok {
		return scope
	}
	return &runScope{}
}

func (r *runScope) abort(err error) error {
	if r.fatal == nil {
		r.fatal = err
	}
	return r.fatal
}

func (r *runScope) emit(node string, s *RunState) {
	if r.observer == nil {
		return
	}
	r.seq++
	r.observer(&Snapshot{
		ThreadID: r.threadID,
		Seq:      r.seq,
		Node:     node,
		State:    s.Clone(),
	})
}

// buildGraph Plan -> StepExecute -> Rewrite -> Expand -> Classify -> Search -> Rerank -> Condense -> Generate
// Generate 之后计划未完成则回到 StepExecute，否则进入 Summarize
func (w *Workflow) buildGraph(ctx context.Context) (compose.Runnable[*RunState, *RunState], error) {
	gr := compose.NewGraph[*RunState, *RunState]()

	nodes := []struct {
		key string
		fn  nodeFunc
	}{
		{NodePlan, w.plan},
		{NodeStepExecute, w.stepExecute},
		{NodeRewrite, w.rewrite},
		{NodeExpand, w.expand},
		{NodeClassify, w.classify},
		{NodeSearch, w.search},
		{NodeRerank, w.rerank},
		{NodeCondense, w.condense},
		{NodeGenerate, w.generate},
		{NodeSummarize, w.summarize},
	}
	for _, n := range nodes {
		if err := gr.AddLambdaNode(n.key, compose.InvokableLambda(w.wrap(n.key, n.fn)), compose.WithNodeName(n.key)); err != nil {
			return nil, err
		}
	}

	edges := [][2]string{
		{compose.START, NodePlan},
		{NodePlan, NodeStepExecute},
		{NodeStepExecute, NodeRewrite},
		{NodeRewrite, NodeExpand},
		{NodeExpand, NodeClassify},
		{NodeClassify, NodeSearch},
		{NodeSearch, NodeRerank},
		{NodeRerank, NodeCondense},
		{NodeCondense, NodeGenerate},
		{NodeSummarize, compose.END},
	}
	for _, e := range edges {
		if err := gr.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}

	branch := compose.NewGraphBranch(func(ctx context.Context, s *RunState) (string, error) {
		return nextAfterGenerate(s), nil
	}, map[string]bool{NodeStepExecute: true, NodeSummarize: true})
	if err := gr.AddBranch(NodeGenerate, branch); err != nil {
		return nil, err
	}

	// 每次迭代 8 个节点，加上 Plan、Summarize 和结束
	maxSteps := (w.cfg.MaxIterations+1)*8 + 4
	return gr.Compile(ctx,
		compose.WithGraphName("finrag_cot"),
		compose.WithMaxRunSteps(maxSteps),
	)
}

// nextAfterGenerate 计划未完成时继续下一步
func nextAfterGenerate(s *RunState) string {
	if !s.Done && s.CurrentStep < len(s.Plan) {
		return NodeStepExecute
	}
	return NodeSummarize
}

// wrap 为节点统一处理取消、迭代上限、不变量校验、panic、指标和快照
func (w *Workflow) wrap(node string, fn nodeFunc) func(ctx context.Context, s *RunState) (*RunState, error) {
	return func(ctx context.Context, s *RunState) (out *RunState, err error) {
		scope := runScopeFrom(ctx)
		if scope.fatal != nil {
			return s, scope.fatal
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s, scope.abort(errors.Wrapf(errors.ErrRunCancelled, ctxErr, "run cancelled before %s", node))
		}
		if invErr := s.CheckInvariants(); invErr != nil {
			return s, scope.abort(invErr)
		}
		if node == NodeStepExecute {
			scope.iterations++
			if scope.iterations > w.cfg.MaxIterations {
				return s, scope.abort(errors.Newf(errors.ErrIterationCeiling,
					"iteration ceiling %d reached with %d of %d steps answered", w.cfg.MaxIterations, s.CurrentStep, len(s.Plan)))
			}
		}

		start := time.Now()
		defer func() {
			nodeDuration.WithLabelValues(node).Observe(time.Since(start).Seconds())
		}()

		var panicErr error
		out, err = func() (res *RunState, err error) {
			defer common.RecoverToError(ctx, "workflow node "+node, &panicErr)
			return fn(ctx, s)
		}()
		if panicErr != nil {
			return s, scope.abort(errors.Wrapf(errors.ErrInvariantViolation, panicErr, "node %s panicked", node))
		}
		if err != nil {
			if appErr := errors.GetAppError(err); appErr != nil && appErr.Code.IsFatal() {
				return s, scope.abort(err)
			}
			return s, scope.abort(errors.Wrapf(errors.ErrInternalError, err, "node %s failed", node))
		}
		if out == nil {
			out = s
		}
		if invErr := out.CheckInvariants(); invErr != nil {
			g.Log().Errorf(ctx, "[%s] invariant violated: %v", node, invErr)
			return out, scope.abort(invErr)
		}

		scope.emit(node, out)
		return out, nil
	}
}
