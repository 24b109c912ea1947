package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
)

// RateLimiterConfig 握手限流配置。按 KeyFunc 分桶，默认以客户端 IP 为 key。
type RateLimiterConfig struct {
	RequestsPerSecond float64
	Burst             int
	KeyFunc           func(c *gin.Context) string
	Logger            logger.Logger
	// IdleExpiry 桶在该时长内无请求即回收，回收周期为其一半
	IdleExpiry time.Duration
}

func (c *RateLimiterConfig) normalize() {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.IdleExpiry <= 0 {
		c.IdleExpiry = 30 * time.Minute
	}
	if c.KeyFunc == nil {
		c.KeyFunc = (*gin.Context).ClientIP
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
}

// bucket 令牌桶，tokens 在每次 take 时按经过的时间补充
type bucket struct {
	tokens float64
	seen   time.Time
}

// buckets 按 key 保存令牌桶
type buckets struct {
	mu    sync.Mutex
	rate  float64
	burst float64
	m     map[string]*bucket
	now   func() time.Time
}

func newBuckets(rate float64, burst int) *buckets {
	return &buckets{
		rate:  rate,
		burst: float64(burst),
		m:     make(map[string]*bucket),
		now:   time.Now,
	}
}

// take 取一个令牌。失败时返回下一个令牌可用前的等待时间。
func (b *buckets) take(key string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	bk, ok := b.m[key]
	if !ok {
		bk = &bucket{tokens: b.burst, seen: now}
		b.m[key] = bk
	}
	bk.tokens = math.Min(b.burst, bk.tokens+now.Sub(bk.seen).Seconds()*b.rate)
	bk.seen = now

	if bk.tokens < 1 {
		wait := time.Duration((1 - bk.tokens) / b.rate * float64(time.Second))
		return false, wait
	}
	bk.tokens--
	return true, 0
}

// evict 回收空闲超过 idle 的桶
func (b *buckets) evict(idle time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for key, bk := range b.m {
		if now.Sub(bk.seen) > idle {
			delete(b.m, key)
		}
	}
}

// RateLimiter 限制 websocket 握手频率，超出时返回 429 和 Retry-After。
// 回收空闲桶的 goroutine 在 ctx 结束时退出。
func RateLimiter(ctx context.Context, cfg *RateLimiterConfig) gin.HandlerFunc {
	if cfg == nil {
		cfg = &RateLimiterConfig{}
	}
	cfg.normalize()
	return rateLimit(ctx, cfg, newBuckets(cfg.RequestsPerSecond, cfg.Burst))
}

func rateLimit(ctx context.Context, cfg *RateLimiterConfig, b *buckets) gin.HandlerFunc {
	go func() {
		ticker := time.NewTicker(cfg.IdleExpiry / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.evict(cfg.IdleExpiry)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(c *gin.Context) {
		key := cfg.KeyFunc(c)
		ok, wait := b.take(key)
		if ok {
			c.Next()
			return
		}

		cfg.Logger.WarnContext(c.Request.Context(), "handshake rate limited",
			zap.String("key", key),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("retry_after", wait),
		)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"Error": "too many requests"})
	}
}
