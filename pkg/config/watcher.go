package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/fsnotify/fsnotify"
)

// startWatch 注册变更回调并启动 viper 的文件监控，调用方持有 mu。
//
// 回调只在解析并校验通过、且与上一次结果不同时触发。编辑器先截断再写入时会产生
// 空文件事件，这类事件直接忽略。
func (c *Config) startWatch() {
	prev, _ := c.settingsLocked()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if fi, err := os.Stat(e.Name); err == nil && fi.Size() == 0 {
			return
		}

		c.mu.RLock()
		watching, onChange := c.watching, c.onChange
		c.mu.RUnlock()
		if !watching || onChange == nil {
			return
		}

		s, err := c.Settings()
		if err != nil {
			c.reportError(fmt.Errorf("reload %s: %w", e.Name, err))
			return
		}
		if reflect.DeepEqual(prev, s) {
			return
		}
		prev = s
		onChange(s)
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StopWatch 停止回调。viper 无法关闭底层 fsnotify watcher，它会一直运行到进程退出。
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// StartWatch 开始监控已加载的配置文件，重复调用无副作用
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watching {
		return nil
	}
	if c.viper.ConfigFileUsed() == "" {
		return ErrConfigNotFound.WithMessage("no config file to watch")
	}
	c.startWatch()
	return nil
}

func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// reportError 交给 onError，未设置时写 stderr
func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "eventpush: config: %v\n", err)
}
