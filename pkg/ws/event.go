package ws

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventTransportConnected 传输开始运行
	EventTransportConnected EventType = "transport.connected"
	// EventTransportDisconnected 传输断开
	EventTransportDisconnected EventType = "transport.disconnected"
	// EventTransportRejected 握手被拒绝
	EventTransportRejected EventType = "transport.rejected"
)

// Event 生命周期事件
type Event struct {
	Type     EventType
	ConnID   string
	Variant  string
	Resource string
	Status   int // 仅 rejected 事件
	Err      error
	Time     time.Time
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 事件总线
type EventBus struct {
	handlers      map[EventType][]EventHandler
	mu            sync.RWMutex
	workerCh      chan func()
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        atomic.Bool
	droppedEvents atomic.Int64
}

// NewEventBus 创建事件总线
func NewEventBus(workers, queueSize int) *EventBus {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

// worker 工作协程
func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.workerCh:
			task()
		case <-eb.stopCh:
			return
		}
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件（异步）
//
// 连接与断开事件最多等待 100ms 入队，其余事件队列满时直接丢弃。
func (eb *EventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		task := func() { h(event) }

		if event.Type == EventTransportConnected || event.Type == EventTransportDisconnected {
			select {
			case eb.workerCh <- task:
			case <-time.After(100 * time.Millisecond):
				eb.droppedEvents.Add(1)
			}
			continue
		}

		select {
		case eb.workerCh <- task:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close 关闭事件总线，未处理的事件被丢弃
func (eb *EventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	close(eb.stopCh)
	eb.wg.Wait()
}

// DroppedEvents 丢弃的事件数量
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
