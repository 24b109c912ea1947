package cache

import (
	"time"
)

// RedisMode Redis 模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`                     // 地址（单机）
	Addrs        []string      `mapstructure:"addrs" yaml:"addrs"`                   // 地址列表（集群/哨兵）
	Mode         RedisMode     `mapstructure:"mode" yaml:"mode"`                     // standalone, cluster, sentinel
	Username     string        `mapstructure:"username" yaml:"username"`             // 用户名（Redis 6.0+）
	Password     string        `mapstructure:"password" yaml:"password"`             // 密码
	DB           int           `mapstructure:"db" yaml:"db"`                         // 数据库编号
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`           // 连接池大小
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"` // 最小空闲连接
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`       // 最大重试次数
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`     // 连接超时
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`     // 读超时
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`   // 写超时

	// 哨兵模式配置
	MasterName string `mapstructure:"master_name" yaml:"master_name"` // 主节点名称

	// 是否为命令创建 span
	Tracing bool `mapstructure:"tracing" yaml:"tracing"`
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Mode:         RedisStandalone,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Validate 验证配置
func (c *RedisConfig) Validate() error {
	if c == nil {
		return ErrCacheInvalidConfig.WithMessage("redis config is required")
	}
	switch c.Mode {
	case RedisStandalone, "":
		if c.Addr == "" {
			return ErrCacheInvalidConfig.WithMessage("redis addr is required for standalone mode")
		}
	case RedisCluster:
		if len(c.Addrs) == 0 {
			return ErrCacheInvalidConfig.WithMessage("redis cluster requires addrs")
		}
	case RedisSentinel:
		if len(c.Addrs) == 0 {
			return ErrCacheInvalidConfig.WithMessage("redis sentinel requires at least 1 sentinel node")
		}
		if c.MasterName == "" {
			return ErrCacheInvalidConfig.WithMessage("redis sentinel requires master name")
		}
	default:
		return ErrCacheInvalidConfig.WithMessage("invalid redis mode: " + string(c.Mode))
	}
	return nil
}
