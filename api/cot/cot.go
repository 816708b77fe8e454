package cot

import (
	"context"

	"github.com/Malowking/finrag/api/cot/v1"
)

type ICotV1 interface {
	Run(ctx context.Context, req *v1.RunReq) (res *v1.RunRes, err error)
	Cancel(ctx context.Context, req *v1.CancelReq) (res *v1.CancelRes, err error)
	Progress(ctx context.Context, req *v1.ProgressReq) (res *v1.ProgressRes, err error)
}
