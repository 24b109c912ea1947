package logger

import (
	"errors"
	"fmt"
)

// Format 输出编码
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// IsValid 是否为已知编码
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Config 日志配置
type Config struct {
	Name     string          // logger 名称，写入 logger 字段
	Level    Level           // 最低级别，运行时可通过 SetLevel 调整
	Format   Format          // 空值按 json 处理
	Console  bool            // 写 stdout
	File     string          // 追加写入的单个文件，不轮转
	Rotate   *RotateConfig   // 轮转文件，基于 lumberjack
	Sampling *SamplingConfig // 每秒采样，连接数多时限制同类日志
	Caller   bool            // 记录调用位置
	Hooks    []Hook          // 写入前回调，admin-logs 通过它接收日志
}

// RotateConfig 文件轮转，数值为 0 时取默认
type RotateConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SamplingConfig 每秒前 Initial 条全部记录，之后每 Thereafter 条记录一条
type SamplingConfig struct {
	Initial    int
	Thereafter int
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Format != "" && !c.Format.IsValid() {
		return fmt.Errorf("logger: unknown format %q", c.Format)
	}
	if c.Rotate != nil && c.Rotate.Filename == "" {
		return errors.New("logger: rotate filename is empty")
	}
	if c.Sampling != nil && (c.Sampling.Initial < 0 || c.Sampling.Thereafter < 0) {
		return errors.New("logger: negative sampling rate")
	}
	return nil
}

// normalize 填充零值字段；未配置任何输出时回落到 stdout
func (c *Config) normalize() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
	if r := c.Rotate; r != nil {
		r.MaxSizeMB = orDefault(r.MaxSizeMB, 100)
		r.MaxBackups = orDefault(r.MaxBackups, 10)
		r.MaxAgeDays = orDefault(r.MaxAgeDays, 30)
	}
	if s := c.Sampling; s != nil {
		s.Initial = orDefault(s.Initial, 100)
		s.Thereafter = orDefault(s.Thereafter, 100)
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
