package ws

import (
	"sync"
	"sync/atomic"
)

// ConnectionPool 活跃传输池
//
// 在握手前预占名额以便超限时直接返回 503，连接结束后释放。
type ConnectionPool struct {
	transports sync.Map     // connID -> *Transport
	count      atomic.Int64 // 已预占名额
	maxConns   int
}

// NewConnectionPool 创建连接池
func NewConnectionPool(maxConns int) *ConnectionPool {
	return &ConnectionPool{
		maxConns: maxConns,
	}
}

// Reserve 预占一个名额，超限返回 ErrTooManyConnections
func (p *ConnectionPool) Reserve() error {
	if int(p.count.Add(1)) > p.maxConns {
		p.count.Add(-1)
		return ErrTooManyConnections
	}
	return nil
}

// Release 释放名额
func (p *ConnectionPool) Release() {
	p.count.Add(-1)
}

// Add 登记传输（名额须已预占）
func (p *ConnectionPool) Add(t *Transport) error {
	if _, loaded := p.transports.LoadOrStore(t.ConnID(), t); loaded {
		return ErrConnExists
	}
	return nil
}

// Remove 移除传输
func (p *ConnectionPool) Remove(connID string) {
	p.transports.Delete(connID)
}

// Get 获取传输
func (p *ConnectionPool) Get(connID string) (*Transport, bool) {
	value, ok := p.transports.Load(connID)
	if !ok {
		return nil, false
	}
	t, ok := value.(*Transport)
	return t, ok
}

// Count 已占用名额数
func (p *ConnectionPool) Count() int {
	return int(p.count.Load())
}

// Range 遍历所有传输
func (p *ConnectionPool) Range(f func(*Transport) bool) {
	p.transports.Range(func(_, value any) bool {
		t, ok := value.(*Transport)
		if !ok {
			return true
		}
		return f(t)
	})
}
