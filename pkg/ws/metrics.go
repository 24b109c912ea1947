package ws

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections(variant string)
	DecrementConnections(variant string)
	IncrementRejected(status int)

	// 消息指标
	IncrementMessageCount(kind string)
	IncrementHeartbeats()
	IncrementCoalesced()
	IncrementDiscarded(n int)

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
	IncrementEncodeErrors()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections(variant string) {}
func (m *NoopMetrics) DecrementConnections(variant string) {}
func (m *NoopMetrics) IncrementRejected(status int)        {}
func (m *NoopMetrics) IncrementMessageCount(kind string)   {}
func (m *NoopMetrics) IncrementHeartbeats()                {}
func (m *NoopMetrics) IncrementCoalesced()                 {}
func (m *NoopMetrics) IncrementDiscarded(n int)            {}
func (m *NoopMetrics) IncrementReadErrors()                {}
func (m *NoopMetrics) IncrementWriteErrors()               {}
func (m *NoopMetrics) IncrementEncodeErrors()              {}

// Stats 基于原子计数器的内存指标
type Stats struct {
	active      atomic.Int64
	total       atomic.Int64
	heartbeats  atomic.Int64
	coalesced   atomic.Int64
	discarded   atomic.Int64
	readErrors  atomic.Int64
	writeErrors atomic.Int64
	encodeErrs  atomic.Int64

	mu       sync.Mutex
	variants map[string]int64
	rejected map[string]int64
	messages map[string]int64
}

// NewStats 创建 Stats
func NewStats() *Stats {
	return &Stats{
		variants: make(map[string]int64),
		rejected: make(map[string]int64),
		messages: make(map[string]int64),
	}
}

func (s *Stats) IncrementConnections(variant string) {
	s.active.Add(1)
	s.total.Add(1)
	s.mu.Lock()
	s.variants[variant]++
	s.mu.Unlock()
}

func (s *Stats) DecrementConnections(variant string) {
	s.active.Add(-1)
	s.mu.Lock()
	s.variants[variant]--
	s.mu.Unlock()
}

func (s *Stats) IncrementRejected(status int) {
	s.mu.Lock()
	s.rejected[strconv.Itoa(status)]++
	s.mu.Unlock()
}

func (s *Stats) IncrementMessageCount(kind string) {
	s.mu.Lock()
	s.messages[kind]++
	s.mu.Unlock()
}

func (s *Stats) IncrementHeartbeats()     { s.heartbeats.Add(1) }
func (s *Stats) IncrementCoalesced()      { s.coalesced.Add(1) }
func (s *Stats) IncrementDiscarded(n int) { s.discarded.Add(int64(n)) }
func (s *Stats) IncrementReadErrors()     { s.readErrors.Add(1) }
func (s *Stats) IncrementWriteErrors()    { s.writeErrors.Add(1) }
func (s *Stats) IncrementEncodeErrors()   { s.encodeErrs.Add(1) }

// StatsSnapshot 指标快照
type StatsSnapshot struct {
	ActiveConnections int64            `json:"active_connections"`
	TotalConnections  int64            `json:"total_connections"`
	ByVariant         map[string]int64 `json:"by_variant"`
	Rejected          map[string]int64 `json:"rejected"`
	Messages          map[string]int64 `json:"messages"`
	Heartbeats        int64            `json:"heartbeats"`
	Coalesced         int64            `json:"coalesced"`
	Discarded         int64            `json:"discarded"`
	ReadErrors        int64            `json:"read_errors"`
	WriteErrors       int64            `json:"write_errors"`
	EncodeErrors      int64            `json:"encode_errors"`
}

// Snapshot 获取快照
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	snap := StatsSnapshot{
		ByVariant: copyCounts(s.variants),
		Rejected:  copyCounts(s.rejected),
		Messages:  copyCounts(s.messages),
	}
	s.mu.Unlock()

	snap.ActiveConnections = s.active.Load()
	snap.TotalConnections = s.total.Load()
	snap.Heartbeats = s.heartbeats.Load()
	snap.Coalesced = s.coalesced.Load()
	snap.Discarded = s.discarded.Load()
	snap.ReadErrors = s.readErrors.Load()
	snap.WriteErrors = s.writeErrors.Load()
	snap.EncodeErrors = s.encodeErrs.Load()
	return snap
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
