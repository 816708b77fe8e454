package v1

import (
	"github.com/Malowking/finrag/core/workflow"
	"github.com/Malowking/finrag/pkg/schema"
	"github.com/gogf/gf/v2/frame/g"
)

// RunReq 提交一个金融问题进行多步推理
type RunReq struct {
	g.Meta   `path:"/v1/cot/run" method:"post" tags:"cot"`
	Query    string `json:"query" v:"required"`
	ThreadID string `json:"thread_id"` // 为空时自动生成
	Stream   bool   `json:"stream"`    // 以 SSE 推送每个节点的状态快照
}

type RunRes struct {
	g.Meta       `mime:"application/json"`
	ThreadID     string                  `json:"thread_id"`
	Plan         []workflow.PlanStep     `json:"plan"`
	Answers      []workflow.AnswerRecord `json:"answers"`
	FinalSummary string                  `json:"final_summary"`
	Sources      []schema.Source         `json:"sources"`
	Messages     []workflow.TraceMessage `json:"messages"`
}

// RunStreamRes 流式响应通过 HTTP 响应流返回
type RunStreamRes struct {
	g.Meta `mime:"text/event-stream"`
}

// CancelReq 取消会话上正在执行的运行
type CancelReq struct {
	g.Meta   `path:"/v1/cot/cancel" method:"post" tags:"cot"`
	ThreadID string `json:"thread_id" v:"required"`
}

type CancelRes struct {
	g.Meta    `mime:"application/json"`
	Cancelled bool `json:"cancelled"`
}

// ProgressReq 订阅运行进度（需要 Redis）
type ProgressReq struct {
	g.Meta   `path:"/v1/cot/progress" method:"get" tags:"cot"`
	ThreadID string `json:"thread_id" v:"required"`
}

type ProgressRes struct {
	g.Meta `mime:"text/event-stream"`
}
