package tracing

import (
	"fmt"
	"time"
)

// 导出器
const (
	ExporterOTLP     = "otlp"     // OTLP over HTTP
	ExporterOTLPGRPC = "otlpgrpc" // OTLP over gRPC
	ExporterStdout   = "stdout"
	ExporterNoop     = "noop"
)

// Config 链路追踪配置。
//
// Endpoint 为空时 OTLP 导出器读取 OTEL_EXPORTER_OTLP_ENDPOINT。SampleRatio 只作用于根 span，
// 子 span 跟随父 span；设置了 OTEL_TRACES_SAMPLER 时以环境变量为准。
type Config struct {
	Enabled        bool              `mapstructure:"enabled" yaml:"enabled"`
	ServiceName    string            `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string            `mapstructure:"service_version" yaml:"service_version"`
	Environment    string            `mapstructure:"environment" yaml:"environment"`
	Exporter       string            `mapstructure:"exporter" yaml:"exporter"`
	Endpoint       string            `mapstructure:"endpoint" yaml:"endpoint"`
	Headers        map[string]string `mapstructure:"headers" yaml:"headers"`
	Insecure       bool              `mapstructure:"insecure" yaml:"insecure"`
	SampleRatio    float64           `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	BatchTimeout   time.Duration     `mapstructure:"batch_timeout" yaml:"batch_timeout"`
}

// DefaultConfig 默认关闭，开启后输出到 stdout
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "eventpush",
		Environment:  "development",
		Exporter:     ExporterStdout,
		SampleRatio:  1,
		BatchTimeout: 5 * time.Second,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return &ConfigError{Field: "service_name", Reason: "required"}
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return &ConfigError{Field: "sample_ratio", Reason: "must be within [0, 1]"}
	}
	switch c.Exporter {
	case ExporterOTLP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return &ConfigError{Field: "exporter", Reason: fmt.Sprintf("unknown exporter %q", c.Exporter)}
	}
	return nil
}

// ConfigError 配置错误
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "tracing: " + e.Field + ": " + e.Reason
}
