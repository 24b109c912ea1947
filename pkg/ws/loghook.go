package ws

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// LogHook 将日志写入转发到管理日志组
//
// 实现 logger.Hook。没有订阅者时不做任何转换。
type LogHook struct {
	registry *Registry
	level    zapcore.Level
}

// NewLogHook 创建日志钩子，低于 level 的日志不转发
func NewLogHook(registry *Registry, level zapcore.Level) *LogHook {
	return &LogHook{registry: registry, level: level}
}

// OnWrite 实现 logger.Hook
func (h *LogHook) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level < h.level || h.registry.Count(GroupAdminLogs) == 0 {
		return nil
	}
	h.registry.Broadcast(GroupAdminLogs, recordFromEntry(entry, fields))
	return nil
}

// recordFromEntry 将 zap 日志条目转换为 LogRecord
func recordFromEntry(entry zapcore.Entry, fields []zapcore.Field) LogRecord {
	rec := LogRecord{
		Time:    entry.Time.UTC(),
		Level:   levelFromZap(entry.Level),
		Logger:  entry.LoggerName,
		Message: entry.Message,
		Stack:   entry.Stack,
	}
	if entry.Caller.Defined {
		rec.Caller = entry.Caller.TrimmedPath()
	}
	if len(fields) > 0 {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		rec.Fields = make(map[string]any, len(enc.Fields))
		for k, v := range enc.Fields {
			rec.Fields[k] = plainValue(v)
		}
	}
	return rec
}

// plainValue 保证字段值可被任意 JSON 编码器编码
func plainValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = plainValue(val[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plainValue(item)
		}
		return out
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func levelFromZap(l zapcore.Level) LogLevel {
	switch {
	case l <= zapcore.DebugLevel:
		return LogDebug
	case l == zapcore.InfoLevel:
		return LogInfo
	case l == zapcore.WarnLevel:
		return LogWarn
	case l == zapcore.ErrorLevel:
		return LogError
	default:
		return LogFatal
	}
}
