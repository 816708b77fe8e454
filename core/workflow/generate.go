package workflow

import (
	"context"
	"fmt"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/errors"
)

// generate 基于压缩后的摘要回答当前步骤，是唯一推进 current_step 的节点
// 本步骤失败或没有可用文档时记录为跳过并照常推进，避免循环停滞
func (w *Workflow) generate(ctx context.Context, s *RunState) (*RunState, error) {
	if s.Done || s.CurrentStep >= len(s.Plan) {
		return s, nil
	}

	record := AnswerRecord{
		Step:           s.CurrentStep,
		StepText:       s.currentStepText(),
		Intent:         s.CurrentIntent,
		RewrittenQuery: s.RewrittenQuery,
	}

	switch {
	case s.StepFailed:
		record.Skipped = true
		record.Error = s.StepError
	case len(s.Documents) == 0:
		record.Skipped = true
		record.Error = "no summarized documents available for generation"
	default:
		summary := s.Documents[0]
		answer, err := w.deps.Models.Generate.Complete(ctx, generateMessages(s.RewrittenQuery, summary.Content))
		if err != nil {
			err = errors.Wrap(errors.ErrGenerateFailed, err, "failed to generate step answer")
			stepFailures.WithLabelValues(NodeGenerate).Inc()
			record.Skipped = true
			record.Error = err.Error()
		} else {
			record.Answer = answer
			record.Sources = summary.Sources
		}
	}

	s.AllAnswers = append(s.AllAnswers, record)
	s.CurrentStep++

	if record.Skipped {
		s.warn(NodeGenerate, fmt.Sprintf("Step %d skipped: %s", record.Step+1, record.Error))
		return s, nil
	}
	s.Answer = record.Answer
	s.addMessage(NodeGenerate, fmt.Sprintf("💡 Answer generated: %s", common.TruncateRunes(record.Answer, w.cfg.AnswerPreviewLen)))
	return s, nil
}
