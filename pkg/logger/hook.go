package logger

import "go.uber.org/zap/zapcore"

// Hook 在条目写入底层输出前调用，返回错误时该条目不再写出
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// HookFunc 函数形式的 Hook
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) error

func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	return f(entry, fields)
}

// hookedCore 在 Write 前依次调用 hooks。With 产生的字段不会传给 hook。
type hookedCore struct {
	zapcore.Core
	hooks []Hook
}

func (c *hookedCore) With(fields []zapcore.Field) zapcore.Core {
	return &hookedCore{Core: c.Core.With(fields), hooks: c.hooks}
}

func (c *hookedCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, c)
}

func (c *hookedCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	for _, h := range c.hooks {
		if err := h.OnWrite(entry, fields); err != nil {
			return err
		}
	}
	return c.Core.Write(entry, fields)
}
