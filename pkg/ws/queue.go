package ws

import "sync"

// queue 多生产者单消费者的出站队列
//
// push 追加消息并置位唤醒信号；信号容量为 1，消费者接收即复位。
// 关闭后 push 直接丢弃。
type queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
	wake   chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

// push 入队，队列已关闭时返回 false
func (q *queue) push(msg Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop 取出队首
func (q *queue) pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// 释放底层数组
		q.items = nil
	}
	return msg, true
}

// len 当前长度
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close 关闭队列并丢弃剩余消息，返回丢弃数量
func (q *queue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := len(q.items)
	q.items = nil
	return n
}
