package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tokmz/eventpush/pkg/cache"
	"github.com/tokmz/eventpush/pkg/ws"
)

// Resolver 按类型与名称查找资源
//
// 资源不存在时返回 ErrUnknownResource。
type Resolver interface {
	Resolve(ctx context.Context, kind ws.ResourceKind, name string) (ws.Resource, error)
}

// ResolverFunc 函数形式的 Resolver
type ResolverFunc func(ctx context.Context, kind ws.ResourceKind, name string) (ws.Resource, error)

// Resolve 实现 Resolver
func (f ResolverFunc) Resolve(ctx context.Context, kind ws.ResourceKind, name string) (ws.Resource, error) {
	return f(ctx, kind, name)
}

// Catalog 内存资源目录，系统资源总是存在
type Catalog struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewCatalog 创建资源目录
func NewCatalog(resources ...Resource) *Catalog {
	c := &Catalog{resources: make(map[string]Resource)}
	for _, r := range resources {
		c.Add(r)
	}
	return c
}

func catalogKey(kind ws.ResourceKind, name string) string {
	return kind.String() + "/" + strings.ToLower(name)
}

// Add 添加资源
func (c *Catalog) Add(r Resource) {
	c.mu.Lock()
	c.resources[catalogKey(r.kind, r.name)] = r
	c.mu.Unlock()
}

// Remove 移除资源
func (c *Catalog) Remove(kind ws.ResourceKind, name string) {
	c.mu.Lock()
	delete(c.resources, catalogKey(kind, name))
	c.mu.Unlock()
}

// Len 资源数（不含系统资源）
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.resources)
}

// Resolve 实现 Resolver，名称不区分大小写
func (c *Catalog) Resolve(_ context.Context, kind ws.ResourceKind, name string) (ws.Resource, error) {
	if kind == ws.KindSystem {
		return System(), nil
	}
	c.mu.RLock()
	r, ok := c.resources[catalogKey(kind, name)]
	c.mu.RUnlock()
	if !ok {
		return nil, unknownResource(name)
	}
	return r, nil
}

// CachingResolver 为下游 Resolver 加上进程内缓存与并发合并
//
// 并发解析同一资源只调用一次下游；解析失败不缓存。
type CachingResolver struct {
	next Resolver
	memo *cache.Memo[ws.Resource]
}

// NewCachingResolver 创建缓存解析器
func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		next: next,
		memo: cache.NewMemo[ws.Resource](ttl),
	}
}

// Resolve 实现 Resolver
func (r *CachingResolver) Resolve(ctx context.Context, kind ws.ResourceKind, name string) (ws.Resource, error) {
	return r.memo.Remember(ctx, catalogKey(kind, name), func(ctx context.Context) (ws.Resource, error) {
		return r.next.Resolve(ctx, kind, name)
	})
}

// Invalidate 清除资源缓存（资源被删除或重新加载时调用）
func (r *CachingResolver) Invalidate(kind ws.ResourceKind, name string) {
	r.memo.Forget(catalogKey(kind, name))
}
