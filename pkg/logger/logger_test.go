package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 劫持日志输出到内存 Buffer，级别走全局 AtomicLevel
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	buffer := &bytes.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"

	old := Log
	Log = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(buffer), level))
	t.Cleanup(func() {
		Log = old
		SetLevel("info")
	})
	return buffer
}

func TestLogger_Info_WithTraceID(t *testing.T) {
	buffer := captureLog(t)

	ctx := WithTrace(context.Background(), "test-trace-12345")
	Info(ctx, "order accepted", zap.String("trader", "Alice"), zap.Float64("price", 100.5))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &logEntry), "日志输出必须是合法的 JSON")

	assert.Equal(t, "info", logEntry["level"])
	assert.Equal(t, "order accepted", logEntry["msg"])
	assert.Equal(t, "Alice", logEntry["trader"])
	assert.Equal(t, 100.5, logEntry["price"])
	assert.Equal(t, "test-trace-12345", logEntry["trace_id"], "TraceID 未能自动注入到日志中")
}

func TestLogger_Error_NoTraceID(t *testing.T) {
	buffer := captureLog(t)

	Error(context.Background(), "book crossed", zap.String("exchange", "main"))

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &logEntry))

	_, exists := logEntry["trace_id"]
	assert.False(t, exists, "没有 TraceID 的 Context 不应该输出 trace_id 字段")
	assert.Equal(t, "error", logEntry["level"])
}

func TestLogger_SetLevel(t *testing.T) {
	buffer := captureLog(t)

	Debug(context.Background(), "hidden")
	assert.Zero(t, buffer.Len(), "info 级别下 debug 不输出")

	SetLevel("debug")
	assert.Equal(t, zapcore.DebugLevel, Level())
	Debug(context.Background(), "shown")
	assert.Contains(t, buffer.String(), "shown")

	SetLevel("nonsense")
	assert.Equal(t, zapcore.InfoLevel, Level())
}
