package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"exarena.com/pkg/logger"
)

// Go 安全启动协程
func Go(fn func()) {
	go func() {
		defer Recover(context.Background())
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程，便于在日志中保留链路信息。
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer Recover(ctx)
		fn(ctx)
	}()
}

// Recover 必须直接 defer 调用
func Recover(ctx context.Context) {
	if r := recover(); r != nil {
		logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}

// Run 同步执行 fn，把 panic 转成 error 返回，给 errgroup 里的任务用
func Run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "🚨 TASK PANIC RECOVERED",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}

type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
