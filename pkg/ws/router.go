package ws

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Router 按请求路径后缀选择传输变体
type Router struct {
	mu       sync.RWMutex
	variants map[string]*Variant // suffix -> variant
	suffixes []string            // 按长度降序
	frozen   atomic.Bool
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{
		variants: make(map[string]*Variant),
	}
}

// Register 注册变体
func (r *Router) Register(v *Variant) error {
	if r.frozen.Load() {
		return ErrRouterFrozen
	}
	if v == nil || v.Suffix == "" || !strings.HasPrefix(v.Suffix, "/") {
		return fmt.Errorf("%w: variant suffix must start with '/'", ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.variants[v.Suffix]; exists {
		return ErrVariantExists
	}
	r.variants[v.Suffix] = v
	r.suffixes = append(r.suffixes, v.Suffix)
	sort.SliceStable(r.suffixes, func(i, j int) bool {
		return len(r.suffixes[i]) > len(r.suffixes[j])
	})
	return nil
}

// Freeze 冻结路由，之后不允许注册
func (r *Router) Freeze() {
	r.frozen.Store(true)
}

// Match 匹配请求路径，未知端点返回 ErrUnknownEndpoint
func (r *Router) Match(path string) (*Variant, error) {
	path = strings.TrimRight(path, "/")

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, suffix := range r.suffixes {
		if strings.HasSuffix(path, suffix) {
			return r.variants[suffix], nil
		}
	}
	return nil, ErrUnknownEndpoint
}

// Variants 已注册的变体（按后缀长度降序）
func (r *Router) Variants() []*Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Variant, 0, len(r.suffixes))
	for _, suffix := range r.suffixes {
		out = append(out, r.variants[suffix])
	}
	return out
}
