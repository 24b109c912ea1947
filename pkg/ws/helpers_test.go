package ws

import (
	"context"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type frame struct {
	kind int
	data []byte
	at   time.Time
}

type readResult struct {
	kind int
	data []byte
	err  error
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn 内存连接
type fakeConn struct {
	mu       sync.Mutex
	frames   []frame
	controls []frame
	writeErr error
	closed   bool

	written chan frame
	reads   chan readResult
	expired chan struct{}
	expOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		written: make(chan frame, 256),
		reads:   make(chan readResult, 16),
		expired: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		return r.kind, r.data, r.err
	case <-c.expired:
		return 0, nil, timeoutError{}
	}
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	if c.writeErr != nil {
		err := c.writeErr
		c.mu.Unlock()
		return err
	}
	f := frame{kind: kind, data: append([]byte(nil), data...), at: time.Now()}
	c.frames = append(c.frames, f)
	c.mu.Unlock()
	c.written <- f
	return nil
}

func (c *fakeConn) WriteControl(kind int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, frame{kind: kind, data: append([]byte(nil), data...), at: time.Now()})
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	if !t.IsZero() && !t.After(time.Now()) {
		c.expOnce.Do(func() { close(c.expired) })
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) SetCloseHandler(func(code int, text string) error) {}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) sendClose(code int, text string) {
	c.reads <- readResult{err: &websocket.CloseError{Code: code, Text: text}}
}

func (c *fakeConn) controlFrames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.controls...)
}

// next 等待下一帧
func (c *fakeConn) next(t *testing.T, timeout time.Duration) (frame, map[string]any) {
	t.Helper()
	select {
	case f := <-c.written:
		var m map[string]any
		require.NoError(t, json.Unmarshal(f.data, &m))
		return f, m
	case <-time.After(timeout):
		t.Fatalf("no frame written within %v", timeout)
		return frame{}, nil
	}
}

// nextNonHeartbeat 跳过心跳等待下一帧
func (c *fakeConn) nextNonHeartbeat(t *testing.T, timeout time.Duration) (frame, map[string]any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("no non-heartbeat frame within %v", timeout)
		}
		f, m := c.next(t, remaining)
		if m["Type"] != "Heartbeat" {
			return f, m
		}
	}
}

// expectSilence 断言在 d 内没有非心跳帧
func (c *fakeConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case f := <-c.written:
			var m map[string]any
			require.NoError(t, json.Unmarshal(f.data, &m))
			if m["Type"] != "Heartbeat" {
				t.Fatalf("unexpected frame: %s", f.data)
			}
		case <-deadline:
			return
		}
	}
}

func note(s string) Message {
	return Notification{Type: "Test", Value: s}
}

// stubResource 测试资源
type stubResource struct {
	name string
	kind ResourceKind
}

func (r stubResource) Name() string       { return r.name }
func (r stubResource) Kind() ResourceKind { return r.kind }

// staticValidator 返回固定结果并计数
type staticValidator struct {
	mu    sync.Mutex
	calls int
	id    Identity
	err   error
}

func (v *staticValidator) Validate(_ context.Context, _ *url.URL, _ string) (Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.id, v.err
}

func (v *staticValidator) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func allowResource(name string) *staticValidator {
	return &staticValidator{id: Identity{Resource: stubResource{name: name, kind: KindDatabase}}}
}
