package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"tickerstream.com/pkg/logger"
)

// Go 安全启动协程，panic 只记录不扩散
func Go(fn func()) {
	go func() {
		defer recoverAndLog(context.Background())
		fn()
	}()
}

// GoCtx 安全启动携带 context 的协程，日志里保留 session_seq
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer recoverAndLog(ctx)
		fn(ctx)
	}()
}

// Call 同步执行 fn，panic 转成 error 返回。定时器回调用它包一层
func Call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error(context.Background(), "🚨 CALLBACK PANIC RECOVERED",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
	return nil
}

func recoverAndLog(ctx context.Context) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		if logger.Log != nil {
			logger.Error(ctx, "🚨 GOROUTINE PANIC RECOVERED",
				zap.Any("panic", r),
				zap.String("stack", stack),
			)
		} else {
			fmt.Printf("🚨 GOROUTINE PANIC: %v\nStack: %s\n", r, stack)
		}
	}
}
