package auth

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
)

// TokenStore 记录已使用的令牌
//
// Consume 在令牌首次使用时返回 true，之后在 expires 之前返回 false。
// expires 须覆盖校验器仍接受该令牌的整个区间，含时钟偏差。
type TokenStore interface {
	Consume(ctx context.Context, id string, expires time.Time) (bool, error)
}

// MemoryTokenStoreConfig 内存令牌存储配置
type MemoryTokenStoreConfig struct {
	ExpectedTokens uint          // 预计同时存活的令牌数
	FalsePositive  float64       // 布隆过滤器误判率
	SweepInterval  time.Duration // 过期清理间隔
}

// MemoryTokenStore 进程内令牌存储
//
// 布隆过滤器快速判定"从未使用"，命中后再查精确集合；
// 清理时删除过期条目并重建过滤器。
type MemoryTokenStore struct {
	cfg MemoryTokenStoreConfig
	now func() time.Time

	mu     sync.Mutex
	filter *bloom.BloomFilter
	used   map[string]time.Time
}

// NewMemoryTokenStore 创建内存令牌存储
func NewMemoryTokenStore(cfg MemoryTokenStoreConfig) *MemoryTokenStore {
	if cfg.ExpectedTokens == 0 {
		cfg.ExpectedTokens = 100_000
	}
	if cfg.FalsePositive <= 0 || cfg.FalsePositive >= 1 {
		cfg.FalsePositive = 0.001
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &MemoryTokenStore{
		cfg:    cfg,
		now:    time.Now,
		filter: bloom.NewWithEstimates(cfg.ExpectedTokens, cfg.FalsePositive),
		used:   make(map[string]time.Time),
	}
}

// Consume 实现 TokenStore
func (s *MemoryTokenStore) Consume(_ context.Context, id string, expires time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter.TestString(id) {
		if exp, ok := s.used[id]; ok && s.now().Before(exp) {
			return false, nil
		}
	}

	s.filter.AddString(id)
	s.used[id] = expires
	return true, nil
}

// Len 已记录的令牌数
func (s *MemoryTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

// Sweep 删除过期条目并重建过滤器，返回删除数
func (s *MemoryTokenStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, exp := range s.used {
		if !now.Before(exp) {
			delete(s.used, id)
			removed++
		}
	}
	if removed > 0 {
		s.filter.ClearAll()
		for id := range s.used {
			s.filter.AddString(id)
		}
	}
	return removed
}

// Run 周期性清理，直到 ctx 结束
func (s *MemoryTokenStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// RedisTokenStore 基于 Redis SET NX 的令牌存储，多实例共享
type RedisTokenStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisTokenStore 创建 Redis 令牌存储
func NewRedisTokenStore(client redis.UniversalClient, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "eventpush:token:"
	}
	return &RedisTokenStore{client: client, prefix: prefix, now: time.Now}
}

// Consume 实现 TokenStore
func (s *RedisTokenStore) Consume(ctx context.Context, id string, expires time.Time) (bool, error) {
	ttl := expires.Sub(s.now())
	if ttl <= 0 {
		// 超过截止时间的令牌不会通过校验，保留一秒防止并发重放
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, s.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, ErrTokenStore.WithError(err)
	}
	return ok, nil
}
