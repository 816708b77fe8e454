package cot

import (
	"context"

	"github.com/Malowking/finrag/api/cot/v1"
	logic "github.com/Malowking/finrag/internal/logic/cot"
)

func (c *ControllerV1) Cancel(ctx context.Context, req *v1.CancelReq) (res *v1.CancelRes, err error) {
	if err = logic.Cancel(ctx, req.ThreadID); err != nil {
		return nil, err
	}
	return &v1.CancelRes{Cancelled: true}, nil
}
