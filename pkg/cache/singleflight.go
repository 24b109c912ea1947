package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type memoEntry[V any] struct {
	value   V
	expires time.Time
}

// Memo 进程内带过期时间的加载缓存（防击穿）
// 同一 key 的并发加载只执行一次 fn，失败结果不缓存
type Memo[V any] struct {
	group singleflight.Group
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	items map[string]memoEntry[V]
}

// NewMemo 创建加载缓存，ttl <= 0 表示永不过期
func NewMemo[V any](ttl time.Duration) *Memo[V] {
	return &Memo[V]{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]memoEntry[V]),
	}
}

// Get 读取未过期的缓存值
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && !m.now().Before(e.expires)) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Remember 命中直接返回，否则通过 singleflight 调用 fn 并缓存结果
func (m *Memo[V]) Remember(ctx context.Context, key string, fn func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := m.Get(key); ok {
		return v, nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		m.set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (m *Memo[V]) set(key string, v V) {
	e := memoEntry[V]{value: v}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
}

// Forget 清除缓存（强制下次重新加载）
func (m *Memo[V]) Forget(key string) {
	m.group.Forget(key)
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
}

// Len 返回缓存条目数（含已过期未清理的）
func (m *Memo[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
