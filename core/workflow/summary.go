package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/pkg/schema"
)

// summarize 汇总所有步骤的推理轨迹生成最终回答，并附上去重后的来源列表
func (w *Workflow) summarize(ctx context.Context, s *RunState) (*RunState, error) {
	trace := BuildReasoningTrace(s.AllAnswers)

	summary, err := w.deps.Models.Summarize.Complete(ctx, summaryMessages(s.Query, s.Answer, trace))
	if err != nil {
		w.degrade(ctx, s, NodeSummarize, "final summary failed, returning the step answers",
			errors.Wrap(errors.ErrSummarizeFailed, err, "summary completion failed"))
		summary = "Step-by-step findings:\n\n" + trace
	}

	sources := DedupeSources(s.AllAnswers)
	summary += RenderBibliography(sources)

	s.FinalSummary = summary
	s.Done = true
	s.addMessage(NodeSummarize, fmt.Sprintf("Question is %s\n\nFinal Summary:\n%s", s.Query, summary))
	return s, nil
}

// BuildReasoningTrace 按步骤顺序渲染每一步的查询和答案
func BuildReasoningTrace(answers []AnswerRecord) string {
	entries := make([]string, 0, len(answers))
	for _, a := range answers {
		answer := a.Answer
		if a.Skipped {
			answer = "(no answer: " + a.Error + ")"
		}
		entries = append(entries, fmt.Sprintf("Step %d [%s]:\n- Rewritten Query: %s\n- Answer: %s",
			a.Step+1, a.Intent, a.RewrittenQuery, answer))
	}
	return strings.Join(entries, "\n\n")
}

// DedupeSources 跨步骤按 source_url（缺失时 source_file）去重，首次出现的保留
// 两个键都没有的来源无法引用，直接丢弃
func DedupeSources(answers []AnswerRecord) []schema.Source {
	var all []schema.Source
	for _, a := range answers {
		for _, src := range a.Sources {
			if src.Key() != "" {
				all = append(all, src)
			}
		}
	}
	return common.RemoveDuplicates(all, schema.Source.Key)
}

// RenderBibliography 没有来源时返回空串
func RenderBibliography(sources []schema.Source) string {
	if len(sources) == 0 {
		return ""
	}
	lines := make([]string, 0, len(sources))
	for _, src := range sources {
		label := src.SourceName
		if label == "" {
			label = src.SourceURL
		}
		if label == "" {
			label = src.Article
		}
		if label == "" {
			label = src.SourceFile
		}
		lines = append(lines, "- "+label)
	}
	return "\n\n📚 Sources:\n" + strings.Join(lines, "\n")
}
