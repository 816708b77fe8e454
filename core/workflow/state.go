package workflow

import (
	"strings"

	"github.com/Malowking/finrag/core/errors"
	"github.com/Malowking/finrag/pkg/schema"
)

// Intent 步骤/查询的主题分类，同时决定检索的命名空间
type Intent string

const (
	IntentEconomy Intent = "economy"
	IntentFund    Intent = "fund"
	IntentUnknown Intent = "unknown"
)

// ParseIntent 宽松解析模型输出，容忍大小写、引号和句末标点
func ParseIntent(raw string) (Intent, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, " \t\r\n\"'`.,;:!()[]{}")
	switch Intent(s) {
	case IntentEconomy, IntentFund, IntentUnknown:
		return Intent(s), true
	}
	return IntentUnknown, false
}

// PlanStep 计划中的一个原子推理步骤
type PlanStep struct {
	Step   string `json:"step"`
	Intent Intent `json:"intent"`
}

// FallbackPlan 计划解析失败时使用的单步计划
func FallbackPlan() []PlanStep {
	return []PlanStep{{Step: "fallback reasoning", Intent: IntentUnknown}}
}

// AnswerRecord 一次迭代的结果，跨迭代只追加
type AnswerRecord struct {
	Step           int             `json:"step"`
	StepText       string          `json:"step_text"`
	Intent         Intent          `json:"intent"`
	RewrittenQuery string          `json:"rewritten_query"`
	Answer         string          `json:"answer"`
	Sources        []schema.Source `json:"sources,omitempty"`
	// Skipped 表示该步骤未能生成答案，Error 记录原因
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TraceMessage 面向用户的执行轨迹
type TraceMessage struct {
	Node    string `json:"node"`
	Content string `json:"content"`
	Warning bool   `json:"warning,omitempty"`
}

// RunState 单次运行的全部状态，仅由工作流引擎持有，不在运行之间共享
type RunState struct {
	ThreadID string `json:"thread_id"`
	Query    string `json:"query"`

	Plan          []PlanStep `json:"plan"`
	CurrentStep   int        `json:"current_step"`
	CurrentIntent Intent     `json:"current_intent,omitempty"`

	// 每次迭代覆盖的临时值
	CotQuery       string             `json:"cot_query,omitempty"`
	RewrittenQuery string             `json:"rewritten_query,omitempty"`
	ExpandedQuery  string             `json:"expanded_query,omitempty"`
	Namespace      Intent             `json:"namespace,omitempty"`
	Votes          []Intent           `json:"votes,omitempty"`
	Documents      []*schema.Document `json:"documents,omitempty"`
	StepFailed     bool               `json:"step_failed,omitempty"`
	StepError      string             `json:"step_error,omitempty"`

	// RewrittenQueries 改写历史，用于审计
	RewrittenQueries []string       `json:"rewritten_queries,omitempty"`
	AllAnswers       []AnswerRecord `json:"all_answers"`
	Answer           string         `json:"answer,omitempty"`
	FinalSummary     string         `json:"final_summary,omitempty"`
	Messages         []TraceMessage `json:"messages"`
	Done             bool           `json:"done"`
}

// NewRunState 创建初始状态
func NewRunState(threadID, query string) *RunState {
	return &RunState{
		ThreadID:   threadID,
		Query:      query,
		AllAnswers: []AnswerRecord{},
		Messages:   []TraceMessage{},
	}
}

func (s *RunState) addMessage(node, content string) {
	s.Messages = append(s.Messages, TraceMessage{Node: node, Content: content})
}

func (s *RunState) warn(node, content string) {
	s.Messages = append(s.Messages, TraceMessage{Node: node, Content: "⚠️ " + content, Warning: true})
}

// failStep 记录外部调用失败，本次迭代剩余节点直接透传
func (s *RunState) failStep(node string, err error) {
	s.StepFailed = true
	s.StepError = err.Error()
	s.warn(node, node+" failed: "+err.Error())
}

// skipIteration 已完成或本步骤已失败时，检索链路上的节点不再工作
func (s *RunState) skipIteration() bool {
	return s.Done || s.StepFailed
}

// currentStepText 当前计划步骤文本
func (s *RunState) currentStepText() string {
	if s.CurrentStep >= 0 && s.CurrentStep < len(s.Plan) {
		return s.Plan[s.CurrentStep].Step
	}
	return ""
}

// CheckInvariants 校验游标与累积结果的一致性
func (s *RunState) CheckInvariants() error {
	if s == nil {
		return errors.New(errors.ErrInvariantViolation, "run state is nil")
	}
	if s.CurrentStep < 0 {
		return errors.Newf(errors.ErrInvariantViolation, "current_step is negative: %d", s.CurrentStep)
	}
	if s.CurrentStep > len(s.Plan) {
		return errors.Newf(errors.ErrInvariantViolation, "current_step %d exceeds plan length %d", s.CurrentStep, len(s.Plan))
	}
	if len(s.AllAnswers) != s.CurrentStep {
		return errors.Newf(errors.ErrInvariantViolation, "all_answers has %d entries but current_step is %d", len(s.AllAnswers), s.CurrentStep)
	}
	return nil
}

// Clone 深拷贝，用于向观察者发布快照
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Plan = append([]PlanStep(nil), s.Plan...)
	cp.Votes = append([]Intent(nil), s.Votes...)
	cp.RewrittenQueries = append([]string(nil), s.RewrittenQueries...)
	cp.Messages = append([]TraceMessage{}, s.Messages...)

	if s.Documents != nil {
		cp.Documents = make([]*schema.Document, len(s.Documents))
		for i, doc := range s.Documents {
			cp.Documents[i] = doc.Clone()
		}
	}

	cp.AllAnswers = make([]AnswerRecord, len(s.AllAnswers))
	for i, a := range s.AllAnswers {
		a.Sources = append([]schema.Source(nil), a.Sources...)
		cp.AllAnswers[i] = a
	}
	return &cp
}
