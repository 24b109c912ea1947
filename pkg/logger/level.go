package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level 日志级别，与 zapcore.Level 数值一致
type Level int8

const (
	DebugLevel = Level(zapcore.DebugLevel)
	InfoLevel  = Level(zapcore.InfoLevel)
	WarnLevel  = Level(zapcore.WarnLevel)
	ErrorLevel = Level(zapcore.ErrorLevel)
	FatalLevel = Level(zapcore.FatalLevel)
)

// String 返回小写名称
func (l Level) String() string {
	switch l {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel, FatalLevel:
		return zapcore.Level(l).String()
	default:
		return "unknown"
	}
}

// ParseLevel 解析级别名称，不区分大小写
func ParseLevel(text string) (Level, error) {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(strings.ToLower(text))); err != nil {
		return InfoLevel, fmt.Errorf("logger: unknown level %q", text)
	}
	return Level(zl), nil
}
