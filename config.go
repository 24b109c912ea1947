package eventpush

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/eventpush/middleware"
	"github.com/tokmz/eventpush/pkg/logger"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	// Addr 监听地址，默认 ":8080"
	Addr string

	// ReadHeaderTimeout 读取请求头超时
	// websocket 连接是长连接，不设置 ReadTimeout/WriteTimeout
	ReadHeaderTimeout time.Duration

	// IdleTimeout 空闲超时
	IdleTimeout time.Duration

	// MaxHeaderBytes 最大请求头字节数
	MaxHeaderBytes int
}

// ShutdownConfig 关机配置
type ShutdownConfig struct {
	// Timeout 关机超时时间，默认 15 秒
	Timeout time.Duration

	// BeforeShutdown 关机前回调（停止事件源等）
	BeforeShutdown func()

	// AfterShutdown 关机后回调
	AfterShutdown func()
}

// Config 引擎配置
type Config struct {
	// Mode 运行模式：debug, release, test
	Mode string

	// Server 服务器配置
	Server ServerConfig

	// Shutdown 关机配置
	Shutdown ShutdownConfig

	// TrustedProxies 信任的代理 IP
	TrustedProxies []string

	// Logger 日志实例，nil 时不输出
	Logger logger.Logger

	// RateLimit 握手限流配置，nil 表示不限流
	RateLimit *middleware.RateLimiterConfig

	// Tracing 是否启用链路追踪中间件
	Tracing bool

	// Banner 启动时是否打印 banner 和端点地址
	Banner bool
}

// Option 配置选项函数
type Option func(*Config)

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
		},
		Shutdown: ShutdownConfig{
			Timeout: 15 * time.Second,
		},
		Banner: true,
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithReadHeaderTimeout 设置读取请求头超时
func WithReadHeaderTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.ReadHeaderTimeout = timeout
	}
}

// WithIdleTimeout 设置空闲超时
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Server.IdleTimeout = timeout
	}
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Shutdown.Timeout = timeout
	}
}

// WithBeforeShutdown 设置关机前回调
func WithBeforeShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.BeforeShutdown = fn
	}
}

// WithAfterShutdown 设置关机后回调
func WithAfterShutdown(fn func()) Option {
	return func(c *Config) {
		c.Shutdown.AfterShutdown = fn
	}
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) {
		c.TrustedProxies = proxies
	}
}

// WithLogger 设置日志实例
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithRateLimit 启用握手限流
func WithRateLimit(cfg *middleware.RateLimiterConfig) Option {
	return func(c *Config) {
		c.RateLimit = cfg
	}
}

// WithTracing 启用链路追踪中间件
func WithTracing(enable bool) Option {
	return func(c *Config) {
		c.Tracing = enable
	}
}

// WithBanner 设置是否打印启动 banner
func WithBanner(enable bool) Option {
	return func(c *Config) {
		c.Banner = enable
	}
}
