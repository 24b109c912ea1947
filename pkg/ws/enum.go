package ws

import (
	"fmt"
	"strings"
)

// ResourceKind 逻辑资源类型
type ResourceKind int

const (
	// KindSystem 系统资源
	KindSystem ResourceKind = iota
	// KindDatabase 数据库
	KindDatabase
	// KindFileSystem 文件系统
	KindFileSystem
	// KindCounters 计数器存储
	KindCounters
)

var resourceKindNames = []string{"System", "Database", "FileSystem", "Counters"}

// String 返回类型名
func (k ResourceKind) String() string {
	if k < 0 || int(k) >= len(resourceKindNames) {
		return fmt.Sprintf("ResourceKind(%d)", int(k))
	}
	return resourceKindNames[k]
}

// MarshalText 按名称编码
func (k ResourceKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(resourceKindNames) {
		return nil, fmt.Errorf("ws: invalid resource kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText 按名称解码（不区分大小写）
func (k *ResourceKind) UnmarshalText(text []byte) error {
	v, err := parseEnum(resourceKindNames, string(text), "resource kind")
	if err != nil {
		return err
	}
	*k = ResourceKind(v)
	return nil
}

// ChangeType 变更类型
type ChangeType int

const (
	ChangePut ChangeType = iota
	ChangeDelete
	ChangeBulkInsertStarted
	ChangeBulkInsertEnded
	ChangeBulkInsertError
)

var changeTypeNames = []string{"Put", "Delete", "BulkInsertStarted", "BulkInsertEnded", "BulkInsertError"}

func (c ChangeType) String() string {
	if c < 0 || int(c) >= len(changeTypeNames) {
		return fmt.Sprintf("ChangeType(%d)", int(c))
	}
	return changeTypeNames[c]
}

// MarshalText 按名称编码
func (c ChangeType) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(changeTypeNames) {
		return nil, fmt.Errorf("ws: invalid change type %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText 按名称解码（不区分大小写）
func (c *ChangeType) UnmarshalText(text []byte) error {
	v, err := parseEnum(changeTypeNames, string(text), "change type")
	if err != nil {
		return err
	}
	*c = ChangeType(v)
	return nil
}

// LogLevel 日志级别
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
)

var logLevelNames = []string{"Debug", "Info", "Warn", "Error", "Fatal"}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
	return logLevelNames[l]
}

// MarshalText 按名称编码
func (l LogLevel) MarshalText() ([]byte, error) {
	if l < 0 || int(l) >= len(logLevelNames) {
		return nil, fmt.Errorf("ws: invalid log level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText 按名称解码（不区分大小写）
func (l *LogLevel) UnmarshalText(text []byte) error {
	v, err := parseEnum(logLevelNames, string(text), "log level")
	if err != nil {
		return err
	}
	*l = LogLevel(v)
	return nil
}

func parseEnum(names []string, text, what string) (int, error) {
	for i, name := range names {
		if strings.EqualFold(name, text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("ws: unknown %s %q", what, text)
}
