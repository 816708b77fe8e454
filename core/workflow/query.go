package workflow

import (
	"context"

	"github.com/Malowking/finrag/core/errors"
)

// rewrite 把 CoT 查询改写为独立完整的检索查询，失败时原样透传
func (w *Workflow) rewrite(ctx context.Context, s *RunState) (*RunState, error) {
	// 循环边会重新进入该链路，这里再次检查终止条件
	if s.CurrentStep >= len(s.Plan) {
		s.Done = true
	}
	if s.skipIteration() {
		return s, nil
	}

	rewritten, err := w.deps.Models.Rewrite.Complete(ctx, rewriteMessages(s.CotQuery))
	if err != nil {
		rewritten = s.CotQuery
		w.degrade(ctx, s, NodeRewrite, "query rewrite failed, keeping the CoT query",
			errors.Wrap(errors.ErrRewriteFailed, err, "rewrite completion failed"))
	}
	s.RewrittenQuery = rewritten
	s.RewrittenQueries = append(s.RewrittenQueries, rewritten)
	s.addMessage(NodeRewrite, "🔄 Rewritten query: "+rewritten)
	return s, nil
}

// expand 结合当前主题扩展检索查询，失败时原样透传
func (w *Workflow) expand(ctx context.Context, s *RunState) (*RunState, error) {
	if s.skipIteration() {
		return s, nil
	}

	intent := s.CurrentIntent
	if intent == "" {
		intent = IntentUnknown
	}
	expanded, err := w.deps.Models.Expand.Complete(ctx, expandMessages(s.RewrittenQuery, intent))
	if err != nil {
		expanded = s.RewrittenQuery
		w.degrade(ctx, s, NodeExpand, "query expansion failed, keeping the rewritten query",
			errors.Wrap(errors.ErrExpandFailed, err, "expansion completion failed"))
	}
	s.ExpandedQuery = expanded
	s.addMessage(NodeExpand, "📈 Expanded query: "+expanded)
	return s, nil
}
