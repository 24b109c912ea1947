package ws

import (
	"sort"
	"sync"
)

// Registry 广播组注册表
//
// 传输在握手成功时注册，断开时注销；生产者通过 Broadcast 投递消息。
// 注册表由服务进程持有并显式传入，不使用全局状态。
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Transport // group -> connID -> transport
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[string]*Transport),
	}
}

// Register 加入广播组
func (r *Registry) Register(group string, t *Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]*Transport)
		r.groups[group] = members
	}
	members[t.ConnID()] = t
}

// Unregister 离开广播组，空组会被删除
func (r *Registry) Unregister(group string, t *Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[group]
	if !ok {
		return
	}
	if cur, ok := members[t.ConnID()]; ok && cur == t {
		delete(members, t.ConnID())
	}
	if len(members) == 0 {
		delete(r.groups, group)
	}
}

// Broadcast 向组内所有传输入队消息，返回投递数量
func (r *Registry) Broadcast(group string, msg Message) int {
	targets := r.snapshot(group)
	for _, t := range targets {
		t.Enqueue(msg)
	}
	return len(targets)
}

// Range 遍历组内传输
func (r *Registry) Range(group string, f func(*Transport) bool) {
	for _, t := range r.snapshot(group) {
		if !f(t) {
			return
		}
	}
}

// Count 组内传输数量
func (r *Registry) Count(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// Groups 各组成员数快照
func (r *Registry) Groups() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.groups))
	for name, members := range r.groups {
		out[name] = len(members)
	}
	return out
}

// GroupNames 排序后的组名
func (r *Registry) GroupNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// snapshot 复制组成员，避免持锁入队
func (r *Registry) snapshot(group string) []*Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.groups[group]
	if len(members) == 0 {
		return nil
	}
	out := make([]*Transport, 0, len(members))
	for _, t := range members {
		out = append(out, t)
	}
	return out
}
