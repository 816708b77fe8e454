package model

import (
	"context"
	"time"

	"github.com/Malowking/finrag/core/errors"
	"github.com/gogf/gf/v2/frame/g"
)

// RetryPolicy 同一模型上的重试策略
type RetryPolicy struct {
	Attempts int           // 总尝试次数（含首次），小于 1 按 1 处理
	Delay    time.Duration // 两次尝试之间的等待
}

// DefaultRetryPolicy 最多 3 次，间隔 500ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 500 * time.Millisecond}
}

// Retry 在同一模型上重试 call，上下文取消后立即停止
// 最终失败时返回 ErrLLMCallFailed，原始错误可通过 errors.Is 取到
func Retry[T any](ctx context.Context, modelName string, policy RetryPolicy, call func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(policy.Attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, errors.Wrapf(errors.ErrLLMCallFailed, err, "model %s call cancelled", modelName)
		}

		out, err := call(ctx)
		if err == nil {
			if attempt > 1 {
				g.Log().Infof(ctx, "[retry] model %s succeeded on attempt %d/%d", modelName, attempt, attempts)
			}
			return out, nil
		}
		lastErr = err
		g.Log().Warningf(ctx, "[retry] model %s attempt %d/%d failed: %v", modelName, attempt, attempts, err)

		if attempt == attempts || policy.Delay <= 0 {
			continue
		}
		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, errors.Wrapf(errors.ErrLLMCallFailed, ctx.Err(), "model %s call cancelled", modelName)
		case <-timer.C:
		}
	}
	return zero, errors.Wrapf(errors.ErrLLMCallFailed, lastErr, "model %s failed after %d attempts", modelName, attempts)
}
