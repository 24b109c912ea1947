package ws

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tokmz/eventpush/pkg/logger"
)

// Config WebSocket 配置
type Config struct {
	// 连接配置
	MaxConnections   int           // 最大连接数
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 入站帧大小上限

	// 传输配置
	HeartbeatInterval time.Duration // 空闲心跳间隔
	WriteWait         time.Duration // 单次写超时

	// 事件总线
	EventWorkers   int // 事件处理协程数
	EventQueueSize int // 事件队列大小

	// Upgrader 配置
	UpgraderConfig UpgraderConfig

	// 依赖
	Metrics Metrics
	Codec   Codec
	Logger  logger.Logger
}

// UpgraderConfig 握手升级配置。CheckOrigin 优先于 AllowedOrigins；两者都为空时要求同源。
type UpgraderConfig struct {
	ReadBufferSize    int
	WriteBufferSize   int
	CheckOrigin       func(*http.Request) bool
	EnableCompression bool
	AllowedOrigins    []string // 支持 https://*.example.com 形式的子域名通配
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	tc := DefaultTransportConfig()
	return &Config{
		MaxConnections:    10000,
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    tc.MaxMessageSize,
		HeartbeatInterval: tc.HeartbeatInterval,
		WriteWait:         tc.WriteWait,
		EventWorkers:      4,
		EventQueueSize:    1024,
		UpgraderConfig: UpgraderConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Validate 校验配置，一次返回全部问题
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, ok bool, v any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, name, v))
		}
	}
	positive("MaxConnections", c.MaxConnections > 0, c.MaxConnections)
	positive("HandshakeTimeout", c.HandshakeTimeout > 0, c.HandshakeTimeout)
	positive("MaxMessageSize", c.MaxMessageSize > 0, c.MaxMessageSize)
	positive("HeartbeatInterval", c.HeartbeatInterval > 0, c.HeartbeatInterval)
	positive("WriteWait", c.WriteWait > 0, c.WriteWait)
	positive("ReadBufferSize", c.UpgraderConfig.ReadBufferSize > 0, c.UpgraderConfig.ReadBufferSize)
	positive("WriteBufferSize", c.UpgraderConfig.WriteBufferSize > 0, c.UpgraderConfig.WriteBufferSize)
	return errors.Join(errs...)
}

// transportConfig 传输配置
func (c *Config) transportConfig() TransportConfig {
	return TransportConfig{
		HeartbeatInterval: c.HeartbeatInterval,
		WriteWait:         c.WriteWait,
		MaxMessageSize:    c.MaxMessageSize,
	}
}

// Option 配置选项
type Option func(*Config)

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHeartbeatInterval 设置心跳间隔
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithWriteWait 设置写超时
func WithWriteWait(wait time.Duration) Option {
	return func(c *Config) {
		c.WriteWait = wait
	}
}

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = timeout
	}
}

// WithMessageSizeLimit 设置入站帧大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithEventBus 设置事件总线协程数与队列大小
func WithEventBus(workers, queueSize int) Option {
	return func(c *Config) {
		c.EventWorkers = workers
		c.EventQueueSize = queueSize
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 只接受白名单内的 Origin，缺少 Origin 头的请求被拒绝
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.UpgraderConfig.AllowedOrigins = allowedOrigins
		c.UpgraderConfig.CheckOrigin = nil
	}
}

// WithAllowAllOrigins 允许所有来源
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = func(*http.Request) bool {
			return true
		}
	}
}

// WithEnableCompression 启用压缩
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.EnableCompression = enable
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithCodec 设置编码器
func WithCodec(codec Codec) Option {
	return func(c *Config) {
		c.Codec = codec
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
