package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/finrag/core/errors"
)

// stepExecute 开始一次迭代：清空上一步的临时值，结合已有答案生成本步的检索查询
func (w *Workflow) stepExecute(ctx context.Context, s *RunState) (*RunState, error) {
	if s.CurrentStep >= len(s.Plan) {
		s.Done = true
		return s, nil
	}

	step := s.Plan[s.CurrentStep]
	s.CurrentIntent = step.Intent
	s.CotQuery = ""
	s.RewrittenQuery = ""
	s.ExpandedQuery = ""
	s.Namespace = ""
	s.Votes = nil
	s.Documents = nil
	s.StepFailed = false
	s.StepError = ""

	query, err := w.deps.Models.Step.Complete(ctx, stepMessages(buildStepContext(s.AllAnswers, step.Step)))
	if err != nil {
		query = step.Step
		w.degrade(ctx, s, NodeStepExecute, "step query generation failed, using the plan step as query",
			errors.Wrap(errors.ErrStepFailed, err, "step completion failed"))
	}
	s.CotQuery = query
	s.addMessage(NodeStepExecute, fmt.Sprintf("🔍 Step %d/%d [%s]: %s\nCoT query: %s",
		s.CurrentStep+1, len(s.Plan), step.Intent, step.Step, query))
	return s, nil
}

// buildStepContext 以前序步骤答案为上下文描述下一个任务
func buildStepContext(answers []AnswerRecord, next string) string {
	var parts []string
	for _, a := range answers {
		if a.Skipped || a.Answer == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Step %d Answer:\n%s", a.Step+1, a.Answer))
	}
	parts = append(parts, "Next task:\n"+next)
	return strings.Join(parts, "\n\n")
}
