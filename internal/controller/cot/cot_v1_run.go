package cot

import (
	"context"

	"github.com/Malowking/finrag/api/cot/v1"
	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/workflow"
	logic "github.com/Malowking/finrag/internal/logic/cot"
	"github.com/gogf/gf/v2/frame/g"
)

func (c *ControllerV1) Run(ctx context.Context, req *v1.RunReq) (res *v1.RunRes, err error) {
	g.Log().Infof(ctx, "CoT run request received - ThreadID: %s, Query: %s, Stream: %v", req.ThreadID, req.Query, req.Stream)

	if req.Stream {
		return nil, c.handleStreamRun(ctx, req)
	}

	state, err := logic.Run(ctx, req.ThreadID, req.Query)
	if err != nil {
		return nil, err
	}
	return toRunRes(state), nil
}

// handleStreamRun 以 SSE 推送每个节点的状态快照，最后一条快照 final 为 true
func (c *ControllerV1) handleStreamRun(ctx context.Context, req *v1.RunReq) error {
	reader, threadID, err := logic.Stream(ctx, req.ThreadID, req.Query)
	if err != nil {
		return err
	}
	r := g.RequestFromCtx(ctx)
	r.Response.Header().Set("X-Thread-Id", threadID)
	return common.StreamSSE[*workflow.Snapshot](ctx, r.Response, reader)
}

func toRunRes(state *workflow.RunState) *v1.RunRes {
	return &v1.RunRes{
		ThreadID:     state.ThreadID,
		Plan:         state.Plan,
		Answers:      state.AllAnswers,
		FinalSummary: state.FinalSummary,
		Sources:      workflow.DedupeSources(state.AllAnswers),
		Messages:     state.Messages,
	}
}
