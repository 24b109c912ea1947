package logger

// Option 配置选项
type Option func(*Config)

func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

func WithLevel(level Level) Option {
	return func(c *Config) {
		c.Level = level
	}
}

func WithFormat(format Format) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithFileOutput 追加写入单个文件
func WithFileOutput(filename string) Option {
	return func(c *Config) {
		c.File = filename
	}
}

// WithRotate 写入轮转文件
func WithRotate(rotate RotateConfig) Option {
	return func(c *Config) {
		c.Rotate = &rotate
	}
}

// WithSampling 开启采样，参数为 0 时取默认值
func WithSampling(initial, thereafter int) Option {
	return func(c *Config) {
		c.Sampling = &SamplingConfig{Initial: initial, Thereafter: thereafter}
	}
}

func WithHook(hook Hook) Option {
	return func(c *Config) {
		c.Hooks = append(c.Hooks, hook)
	}
}
