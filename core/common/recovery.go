package common

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gogf/gf/v2/frame/g"
)

func logPanic(ctx context.Context, task string, r any) {
	g.Log().Criticalf(ctx, "[PANIC RECOVERED] task=%s err=%v\n%s", task, r, debug.Stack())
}

// RecoverPanic 直接用于 defer，吞掉 panic 并记录堆栈
func RecoverPanic(ctx context.Context, task string) {
	if r := recover(); r != nil {
		logPanic(ctx, task, r)
	}
}

// RecoverToError 直接用于 defer，把 panic 转成错误写入 errp
func RecoverToError(ctx context.Context, task string, errp *error) {
	if r := recover(); r != nil {
		logPanic(ctx, task, r)
		*errp = fmt.Errorf("panic in task %s: %v", task, r)
	}
}

// SafeGo 启动带 panic 保护的 goroutine
func SafeGo(ctx context.Context, task string, fn func()) {
	go func() {
		defer RecoverPanic(ctx, task)
		fn()
	}()
}
