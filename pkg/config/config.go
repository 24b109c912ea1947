package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix 默认环境变量前缀，如 EVENTPUSH_WEBSOCKET_MAX_CONNECTIONS
const DefaultEnvPrefix = "EVENTPUSH"

// Config 配置管理器
type Config struct {
	viper *viper.Viper // viper 实例
	mu    sync.RWMutex // 并发保护锁

	// 配置文件相关
	configFile  string   // 配置文件完整路径
	configName  string   // 配置文件名（不含扩展名）
	configType  string   // 配置文件类型
	configPaths []string // 配置文件搜索路径
	optional    bool     // 按名称搜索不到文件时是否仅使用默认值与环境变量

	// 监控相关
	autoWatch bool            // 是否自动开启文件监控
	watching  bool            // 是否正在监控
	onChange  func(*Settings) // 配置变更回调
	onError   func(error)     // 错误回调

	// 其他选项
	defaults  map[string]any // 额外默认值（覆盖 DefaultSettings）
	envPrefix string         // 环境变量前缀
}

// New 创建新的配置管理器
func New(opts ...Option) *Config {
	c := &Config{
		viper:     viper.New(),
		envPrefix: DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Load 加载配置文件
//
// 默认值来自 DefaultSettings，随后依次被配置文件与环境变量覆盖。
func (c *Config) Load() error {
	c.mu.Lock()

	defaults, err := defaultsMap()
	if err != nil {
		c.mu.Unlock()
		return ErrConfigReadFailed.WithError(err)
	}
	for k, v := range defaults {
		c.viper.SetDefault(k, v)
	}
	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}

	// 设置环境变量
	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
	}
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	// 设置配置文件
	hasFile := c.configFile != "" || c.configName != ""
	if c.configFile != "" {
		if _, err := os.Stat(c.configFile); err != nil {
			c.mu.Unlock()
			return ErrConfigNotFound.WithError(err)
		}
		c.viper.SetConfigFile(c.configFile)
	} else if c.configName != "" {
		c.viper.SetConfigName(c.configName)
		if c.configType != "" {
			c.viper.SetConfigType(c.configType)
		}
		for _, path := range c.configPaths {
			c.viper.AddConfigPath(path)
		}
	}

	if hasFile {
		if err := c.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case errors.As(err, &notFound) && c.optional:
				// 仅使用默认值与环境变量
			case errors.As(err, &notFound):
				c.mu.Unlock()
				return ErrConfigNotFound.WithError(err)
			default:
				c.mu.Unlock()
				return ErrConfigReadFailed.WithError(err)
			}
		}
	}

	// 自动开启监控（仅在读到文件时）
	if c.autoWatch && c.viper.ConfigFileUsed() != "" {
		c.startWatch()
	}

	c.mu.Unlock()
	return nil
}

// Settings 反序列化并校验完整配置
func (c *Config) Settings() (*Settings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settingsLocked()
}

func (c *Config) settingsLocked() (*Settings, error) {
	s := DefaultSettings()
	if err := c.viper.Unmarshal(s); err != nil {
		return nil, ErrConfigReadFailed.WithError(err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ConfigFileUsed 实际使用的配置文件，未读取文件时为空
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// GetString 获取字符串配置值
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

// GetInt 获取整数配置值
func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetInt(key)
}

// GetBool 获取布尔配置值
func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetBool(key)
}

// GetDuration 获取时间间隔配置值
func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetDuration(key)
}

// Set 设置配置值（优先级最高，用于命令行参数覆盖）
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// IsSet 检查配置键是否存在
func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.IsSet(key)
}

// Unmarshal 将配置反序列化到结构体
func (c *Config) Unmarshal(rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.Unmarshal(rawVal)
}

// Close 关闭配置管理器，停止监控
func (c *Config) Close() {
	c.StopWatch()
}
