package cot

import (
	"context"

	"github.com/Malowking/finrag/api/cot/v1"
	"github.com/Malowking/finrag/core/common"
	"github.com/Malowking/finrag/core/workflow"
	logic "github.com/Malowking/finrag/internal/logic/cot"
	"github.com/gogf/gf/v2/frame/g"
)

// Progress 从 Redis 回放并跟随运行进度，可用于断线重连或跨实例查看
func (c *ControllerV1) Progress(ctx context.Context, req *v1.ProgressReq) (res *v1.ProgressRes, err error) {
	reader, err := logic.Progress(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	return nil, common.StreamSSE[*workflow.Snapshot](ctx, g.RequestFromCtx(ctx).Response, reader)
}
