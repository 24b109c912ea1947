package cache

import "github.com/tokmz/eventpush/pkg/errors"

// 预定义错误
var (
	ErrCacheInvalidConfig = errors.New(3005, "cache invalid config", 500)
	ErrCacheConnection    = errors.New(3003, "cache connection failed", 500)
)
