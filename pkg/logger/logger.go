package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

// SessionKey 当前 websocket 会话序号在 Context 中的 Key
const SessionKey ctxKey = "session_seq"

// 全局 Logger 实例，未 Init 时为 nil
var Log *zap.Logger

// Init 初始化日志组件，只输出到控制台
// level: 日志级别 (debug, info, warn, error)
func Init(serviceName string, level string) {
	InitWithFile(serviceName, level, "")
}

// InitWithFile 初始化日志组件
// logFile 为空时只写 stdout（容器化标准），否则同时追加写入文件
func InitWithFile(serviceName string, level string, logFile string) {
	Log = New(serviceName, level, logFile)
}

// New 构建一个独立的 logger，不修改全局 Log
func New(serviceName string, level string, logFile string) *zap.Logger {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout),
	}

	if logFile != "" {
		// 打开失败只输出到控制台，不中断程序
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				writeSyncers = append(writeSyncers, zapcore.AddSync(file))
			}
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		zapLevel,
	)

	return zap.New(core, zap.AddCaller()).With(zap.String("service", serviceName))
}

// L 返回全局 logger；未初始化时返回 Nop，组件可以放心调用
func L() *zap.Logger {
	if Log == nil {
		return zap.NewNop()
	}
	return Log
}

// WithSession 把会话序号放进 ctx，后续带 ctx 的日志会自动带上 session_seq
func WithSession(ctx context.Context, seq uint64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, SessionKey, seq)
}

// SessionFromContext 取出会话序号
func SessionFromContext(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	seq, ok := ctx.Value(SessionKey).(uint64)
	return seq, ok
}

// ---------------------------------------------------------
// 带 Context 的日志方法
// ---------------------------------------------------------

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractSession(ctx, &fields)
	L().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractSession(ctx, &fields)
	L().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractSession(ctx, &fields)
	L().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractSession(ctx, &fields)
	L().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func extractSession(ctx context.Context, fields *[]zap.Field) {
	if seq, ok := SessionFromContext(ctx); ok {
		*fields = append(*fields, zap.Uint64(string(SessionKey), seq))
	}
}

// Sync 刷新缓冲区 (建议在 main 函数 defer 中调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
