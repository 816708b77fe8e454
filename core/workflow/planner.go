package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/Malowking/finrag/core/errors"
	"github.com/bytedance/sonic"
	"github.com/gogf/gf/v2/frame/g"
)

type planOutput struct {
	Steps []PlanStep `json:"steps"`
}

// plan 把问题分解为带主题标签的推理步骤，失败时回退到单步计划
func (w *Workflow) plan(ctx context.Context, s *RunState) (*RunState, error) {
	raw, err := w.deps.Models.Plan.Complete(ctx, planMessages(s.Query))
	if err == nil {
		var steps []PlanStep
		steps, err = ParsePlan(raw)
		if err == nil {
			s.Plan = steps
			s.addMessage(NodePlan, formatPlan(steps))
			g.Log().Infof(ctx, "Plan created with %d steps", len(steps))
			return s, nil
		}
	}

	s.Plan = FallbackPlan()
	w.degrade(ctx, s, NodePlan, "CoT planning failed, falling back to a single reasoning step", err)
	return s, nil
}

// ParsePlan 解析模型返回的计划，容忍 Markdown 代码块、前后说明文字和裸数组
func ParsePlan(raw string) ([]PlanStep, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, errors.New(errors.ErrPlanFailed, "planner output contains no JSON")
	}

	var steps []PlanStep
	if strings.HasPrefix(body, "[") {
		if err := sonic.UnmarshalString(body, &steps); err != nil {
			return nil, errors.Wrap(errors.ErrPlanFailed, err, "failed to parse plan")
		}
	} else {
		var out planOutput
		if err := sonic.UnmarshalString(body, &out); err != nil {
			return nil, errors.Wrap(errors.ErrPlanFailed, err, "failed to parse plan")
		}
		steps = out.Steps
	}

	cleaned := make([]PlanStep, 0, len(steps))
	for _, step := range steps {
		text := strings.TrimSpace(step.Step)
		if text == "" {
			continue
		}
		intent, _ := ParseIntent(string(step.Intent))
		cleaned = append(cleaned, PlanStep{Step: text, Intent: intent})
	}
	if len(cleaned) == 0 {
		return nil, errors.New(errors.ErrPlanFailed, "planner returned an empty plan")
	}
	return cleaned, nil
}

// extractJSON 截取第一个 JSON 对象或数组
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

func formatPlan(steps []PlanStep) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🧭 Plan created with %d steps:", len(steps)))
	for i, step := range steps {
		sb.WriteString(fmt.Sprintf("\n%d. [%s] %s", i+1, step.Intent, step.Step))
	}
	return sb.String()
}
