package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/tokmz/eventpush/pkg/auth"
	"github.com/tokmz/eventpush/pkg/bridge"
	"github.com/tokmz/eventpush/pkg/cache"
	"github.com/tokmz/eventpush/pkg/tracing"
)

// Settings 服务完整配置
type Settings struct {
	Server    ServerSettings    `mapstructure:"server" yaml:"server"`
	WebSocket WebSocketSettings `mapstructure:"websocket" yaml:"websocket"`
	Auth      AuthSettings      `mapstructure:"auth" yaml:"auth"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
	Tracing   tracing.Config    `mapstructure:"tracing" yaml:"tracing"`
	Bridges   bridge.Config     `mapstructure:"bridges" yaml:"bridges"`
}

// ServerSettings HTTP 服务配置
type ServerSettings struct {
	Addr              string            `mapstructure:"addr" yaml:"addr"`
	Mode              string            `mapstructure:"mode" yaml:"mode"` // gin 模式：debug/release/test
	ReadHeaderTimeout time.Duration     `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	TrustedProxies    []string          `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	RateLimit         RateLimitSettings `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitSettings 握手限流配置
type RateLimitSettings struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
}

// WebSocketSettings websocket 传输配置
type WebSocketSettings struct {
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	WriteWait         time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	EnableCompression bool          `mapstructure:"enable_compression" yaml:"enable_compression"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"` // 为空时使用同源检查，* 表示全部
	EventWorkers      int           `mapstructure:"event_workers" yaml:"event_workers"`
	EventQueueSize    int           `mapstructure:"event_queue_size" yaml:"event_queue_size"`
}

// AuthSettings 认证配置
type AuthSettings struct {
	AllowAnonymous   bool               `mapstructure:"allow_anonymous" yaml:"allow_anonymous"`
	Token            auth.TokenConfig   `mapstructure:"token" yaml:"token"`
	Store            TokenStoreSettings `mapstructure:"store" yaml:"store"`
	ResolverCacheTTL time.Duration      `mapstructure:"resolver_cache_ttl" yaml:"resolver_cache_ttl"`
	Resources        ResourceSettings   `mapstructure:"resources" yaml:"resources"`
}

// TokenStoreSettings 已用令牌存储配置
type TokenStoreSettings struct {
	Type   string            `mapstructure:"type" yaml:"type"` // memory | redis
	Prefix string            `mapstructure:"prefix" yaml:"prefix"`
	Redis  cache.RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// ResourceSettings 启动时加载的资源目录
type ResourceSettings struct {
	Databases   []string `mapstructure:"databases" yaml:"databases"`
	FileSystems []string `mapstructure:"file_systems" yaml:"file_systems"`
	Counters    []string `mapstructure:"counters" yaml:"counters"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level         string `mapstructure:"level" yaml:"level"`
	Format        string `mapstructure:"format" yaml:"format"`
	Console       bool   `mapstructure:"console" yaml:"console"`
	File          string `mapstructure:"file" yaml:"file"`
	MaxSizeMB     int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays    int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress      bool   `mapstructure:"compress" yaml:"compress"`
	Sampling      bool   `mapstructure:"sampling" yaml:"sampling"`
	AdminLogLevel string `mapstructure:"admin_log_level" yaml:"admin_log_level"` // 推送到 admin-logs 的最低级别
}

// DefaultSettings 默认配置
func DefaultSettings() *Settings {
	tokenCfg := auth.DefaultTokenConfig()
	return &Settings{
		Server: ServerSettings{
			Addr:              ":8080",
			Mode:              "release",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RateLimit: RateLimitSettings{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
		},
		WebSocket: WebSocketSettings{
			MaxConnections:    10000,
			HeartbeatInterval: 5 * time.Second,
			WriteWait:         10 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			MaxMessageSize:    4096,
			EventWorkers:      4,
			EventQueueSize:    1024,
		},
		Auth: AuthSettings{
			Token: tokenCfg,
			Store: TokenStoreSettings{
				Type:   "memory",
				Prefix: "eventpush:token:",
				Redis:  *cache.DefaultRedisConfig(),
			},
			ResolverCacheTTL: 30 * time.Second,
		},
		Log: LogSettings{
			Level:         "info",
			Format:        "json",
			Console:       true,
			MaxSizeMB:     100,
			MaxBackups:    10,
			MaxAgeDays:    30,
			AdminLogLevel: "info",
		},
		Tracing: *tracing.DefaultConfig(),
		Bridges: bridge.DefaultConfig(),
	}
}

// Validate 校验配置
func (s *Settings) Validate() error {
	var problems []string
	if s.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if s.WebSocket.MaxConnections <= 0 {
		problems = append(problems, "websocket.max_connections must be positive")
	}
	if s.WebSocket.HeartbeatInterval <= 0 {
		problems = append(problems, "websocket.heartbeat_interval must be positive")
	}
	if s.WebSocket.WriteWait <= 0 {
		problems = append(problems, "websocket.write_wait must be positive")
	}
	if !s.Auth.AllowAnonymous && s.Auth.Token.Secret == "" {
		problems = append(problems, "auth.token.secret is required unless auth.allow_anonymous is set")
	}
	switch s.Auth.Store.Type {
	case "memory", "":
	case "redis":
		if err := s.Auth.Store.Redis.Validate(); err != nil {
			problems = append(problems, "auth.store.redis: "+err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("auth.store.type %q: want memory or redis", s.Auth.Store.Type))
	}
	if s.Tracing.Enabled {
		if err := s.Tracing.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return ErrConfigInvalid.WithMessage(strings.Join(problems, "; "))
	}
	return nil
}

// YAML 以 YAML 输出配置（config 命令使用）
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// defaultsMap 将默认配置展开为 viper 的点分键，使环境变量覆盖对每个键生效
func defaultsMap() (map[string]any, error) {
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	flat := make(map[string]any)
	flatten("", tree, flat)
	return flat, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flatten(key, m, out)
			continue
		}
		out[key] = v
	}
}
