package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperr "github.com/tokmz/eventpush/pkg/errors"
	"github.com/tokmz/eventpush/pkg/logger"
	"github.com/tokmz/eventpush/pkg/tracing"
)

// TransportConfig 传输配置
type TransportConfig struct {
	HeartbeatInterval time.Duration // 空闲心跳间隔
	WriteWait         time.Duration // 单次写超时
	MaxMessageSize    int64         // 入站帧大小上限
}

// DefaultTransportConfig 默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HeartbeatInterval: 5 * time.Second,
		WriteWait:         10 * time.Second,
		MaxMessageSize:    4 * 1024,
	}
}

// TransportOption 传输选项
type TransportOption func(*Transport)

// WithTransportLogger 设置日志
func WithTransportLogger(l logger.Logger) TransportOption {
	return func(t *Transport) {
		t.log = l
	}
}

// WithTransportCodec 设置编码器
func WithTransportCodec(c Codec) TransportOption {
	return func(t *Transport) {
		t.codec = c
	}
}

// WithTransportMetrics 设置监控
func WithTransportMetrics(m Metrics) TransportOption {
	return func(t *Transport) {
		t.metrics = m
	}
}

// WithTransportConfig 设置传输配置
func WithTransportConfig(cfg TransportConfig) TransportOption {
	return func(t *Transport) {
		t.config = cfg
	}
}

// Transport 单连接事件推送传输
//
// 生命周期：NewTransport → TrySetup（验证并注册）→ Run（发送与接收循环）→ 断开。
// Enqueue 可在任意 goroutine 调用，非阻塞；断开后入队的消息被丢弃。
type Transport struct {
	variant  *Variant
	registry *Registry
	codec    Codec
	log      logger.Logger
	metrics  Metrics
	config   TransportConfig
	now      func() time.Time

	connID string

	// 握手结果，TrySetup 成功后不再修改
	identity Identity
	group    string
	cooldown time.Duration
	uri      *url.URL
	token    string
	setup    bool
	setupErr *apperr.Error

	queue     *queue
	connected atomic.Bool
	running   atomic.Bool

	mu        sync.Mutex
	handlers  []func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewTransport 创建传输
func NewTransport(variant *Variant, registry *Registry, opts ...TransportOption) *Transport {
	t := &Transport{
		variant:  variant,
		registry: registry,
		codec:    DefaultCodec,
		log:      logger.Nop(),
		metrics:  &NoopMetrics{},
		config:   DefaultTransportConfig(),
		now:      time.Now,
		connID:   newConnID(),
		queue:    newQueue(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrySetup 执行握手验证
//
// 验证器只调用一次。失败时写入验证器给出的状态码与 {"Error": "..."} 响应体并返回 false，
// 不做任何注册。仅验证变体总是成功，验证推迟到 Run 中执行。
func (t *Transport) TrySetup(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	if t.setup {
		return true
	}

	query := r.URL.Query()
	t.cooldown = parseCooldown(query.Get(QueryCooldown))
	token := query.Get(QueryToken)

	if t.variant.ValidateOnly {
		t.uri, t.token = r.URL, token
		t.setup = true
		t.connected.Store(true)
		return true
	}

	id, verr := t.validate(ctx, r.URL, token)
	if verr != nil {
		t.metrics.IncrementRejected(verr.Status())
		t.log.InfoContext(ctx, "websocket handshake rejected",
			zap.String("conn_id", t.connID),
			zap.String("variant", t.variant.Name),
			zap.Int("status", verr.Status()),
			zap.Error(verr),
		)
		t.setupErr = verr
		writeError(w, verr.Status(), verr.Message)
		return false
	}

	t.accept(id)
	return true
}

// validate 调用验证器并规范化结果
func (t *Transport) validate(ctx context.Context, uri *url.URL, token string) (Identity, *apperr.Error) {
	ctx, span := tracing.StartSpan(ctx, "ws.validate",
		attribute.String("ws.variant", t.variant.Name),
		attribute.String("ws.conn_id", t.connID),
	)
	defer span.End()

	if t.variant.Validator == nil {
		return Identity{}, apperr.ErrServer.WithMessage("no validator configured")
	}

	id, err := t.variant.Validator.Validate(ctx, uri, token)
	if err != nil {
		tracing.RecordError(span, err)
		verr, ok := apperr.From(err)
		if !ok {
			verr = apperr.ErrServer.WithError(err)
		}
		return Identity{}, verr
	}

	if id.ID == "" {
		id.ID = uuid.NewString()
	}
	if id.ResourceName == "" && id.Resource != nil {
		id.ResourceName = id.Resource.Name()
	}
	span.SetAttributes(attribute.String("ws.resource", id.ResourceName))
	return id, nil
}

// accept 保存身份并按注册策略加入广播组
func (t *Transport) accept(id Identity) {
	t.identity = id
	t.group = t.variant.group(id)
	t.setup = true
	t.connected.Store(true)

	if t.group != "" && t.registry != nil {
		group := t.group
		t.registry.Register(group, t)
		t.OnDisconnect(func() {
			t.registry.Unregister(group, t)
		})
	}
}

// Enqueue 入队消息，非阻塞且永不失败
func (t *Transport) Enqueue(msg Message) {
	if msg == nil {
		return
	}
	if !t.queue.push(msg) {
		t.metrics.IncrementDiscarded(1)
	}
}

// Run 运行发送与接收循环，两者都退出后返回
//
// 接收循环退出（正常关闭或读错误）会取消共享上下文，从而停止发送循环；
// 发送失败同样会停止接收循环。无论从哪条路径退出，断开通知都只触发一次。
func (t *Transport) Run(ctx context.Context, conn Conn) error {
	if !t.setup {
		return ErrNotSetup
	}
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer t.disconnect()

	if !t.connected.Load() {
		return ErrTransportClosed
	}

	ctx = logger.WithConnID(ctx, t.connID)
	ctx = logger.WithSubscription(ctx, t.identity.ID)
	ctx = logger.WithResource(ctx, t.identity.ResourceName)

	suppressCloseEcho(conn)
	conn.SetReadLimit(t.config.MaxMessageSize)

	if t.variant.ValidateOnly {
		return t.runValidateOnly(ctx, conn)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	// 取消时让阻塞中的读立即返回
	stop := context.AfterFunc(gctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	g.Go(func() error {
		return t.sendLoop(gctx, conn)
	})
	g.Go(func() error {
		defer cancel()
		t.receiveLoop(gctx, conn)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendLoop 合并发送循环
func (t *Transport) sendLoop(ctx context.Context, conn Conn) error {
	var (
		pending  Message
		lastSent time.Time
	)

	timer := time.NewTimer(t.config.HeartbeatInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			if err := t.send(conn, NewHeartbeat(t.now())); err != nil {
				return err
			}
			t.metrics.IncrementHeartbeats()

			if pending != nil && t.cooldownLapsed(lastSent) {
				if err := t.send(conn, pending); err != nil {
					return err
				}
				pending = nil
				lastSent = t.now()
			}

		case <-t.queue.wake:
			for {
				if ctx.Err() != nil {
					return nil
				}
				msg, ok := t.queue.pop()
				if !ok {
					break
				}
				if !t.cooldownLapsed(lastSent) {
					if pending != nil {
						t.metrics.IncrementCoalesced()
					}
					pending = msg
					continue
				}
				if err := t.send(conn, msg); err != nil {
					return err
				}
				pending = nil
				lastSent = t.now()
			}
		}

		timer.Reset(t.config.HeartbeatInterval)
	}
}

// cooldownLapsed 距上次发送是否已超过冷却时间
func (t *Transport) cooldownLapsed(lastSent time.Time) bool {
	return t.cooldown <= 0 || t.now().Sub(lastSent) >= t.cooldown
}

// send 整形、编码并写出一条消息
//
// 编码失败的消息被跳过；只有写失败会终止发送循环。
func (t *Transport) send(conn Conn, msg Message) error {
	data, err := t.codec.Encode(t.variant.shape(msg))
	if err != nil {
		t.metrics.IncrementEncodeErrors()
		t.log.Warn("encode message failed",
			zap.String("conn_id", t.connID),
			zap.String("kind", msg.Kind()),
			zap.Error(err),
		)
		return nil
	}

	if err := conn.SetWriteDeadline(t.now().Add(t.config.WriteWait)); err != nil {
		t.metrics.IncrementWriteErrors()
		return err
	}
	if err := conn.WriteMessage(t.codec.FrameType(), data); err != nil {
		t.metrics.IncrementWriteErrors()
		return err
	}
	t.metrics.IncrementMessageCount(msg.Kind())
	return nil
}

// receiveLoop 读取入站帧直到出错，仅对正常关闭帧回显确认
func (t *Transport) receiveLoop(ctx context.Context, conn Conn) {
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			// 入站数据帧不参与协议
			continue
		}
		t.handleReadError(ctx, conn, err)
		return
	}
}

// handleReadError 处理读错误：正常关闭帧回显确认，其他关闭帧交给底层，其余错误记日志
func (t *Transport) handleReadError(ctx context.Context, conn Conn, err error) {
	var ce *websocket.CloseError
	switch {
	case isNormalClose(err):
		if ackErr := ackClose(conn, t.config.WriteWait); ackErr != nil {
			t.log.DebugContext(ctx, "close acknowledgement failed", zap.Error(ackErr))
		}
		t.log.DebugContext(ctx, "connection closed by client")
	case errors.As(err, &ce):
		t.log.InfoContext(ctx, "connection closed by client",
			zap.Int("code", ce.Code),
			zap.String("reason", ce.Text),
		)
	case ctx.Err() != nil:
		// 取消导致的读超时
	default:
		t.metrics.IncrementReadErrors()
		t.log.WarnContext(ctx, "read from websocket failed", zap.Error(err))
	}
}

// runValidateOnly 仅验证：发送一条状态消息后等待一帧
func (t *Transport) runValidateOnly(ctx context.Context, conn Conn) error {
	status := Status{StatusCode: http.StatusOK, StatusMessage: "OK"}
	if _, verr := t.validate(ctx, t.uri, t.token); verr != nil {
		t.metrics.IncrementRejected(verr.Status())
		status.StatusCode = verr.Status()
		status.StatusMessage = verr.Message
	}
	status.Time = t.now().UTC()

	if err := t.send(conn, status); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, _, err := conn.ReadMessage(); err != nil {
		t.handleReadError(ctx, conn, err)
	}
	return nil
}

// Abort 在 Run 之前放弃传输（如升级失败），触发断开并注销
func (t *Transport) Abort() {
	t.disconnect()
}

// disconnect 标记断开、清空队列并触发断开回调，只执行一次
func (t *Transport) disconnect() {
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		if n := t.queue.close(); n > 0 {
			t.metrics.IncrementDiscarded(n)
		}

		t.mu.Lock()
		handlers := t.handlers
		t.handlers = nil
		close(t.done)
		t.mu.Unlock()

		for _, h := range handlers {
			h()
		}
	})
}

// OnDisconnect 注册断开回调；已断开时立即执行
func (t *Transport) OnDisconnect(fn func()) {
	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		fn()
		return
	default:
	}
	t.handlers = append(t.handlers, fn)
	t.mu.Unlock()
}

// Done 断开时关闭的 channel
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// ID 订阅 ID
func (t *Transport) ID() string { return t.identity.ID }

// ConnID 连接 ID
func (t *Transport) ConnID() string { return t.connID }

// ResourceName 资源名
func (t *Transport) ResourceName() string { return t.identity.ResourceName }

// Resource 资源句柄
func (t *Transport) Resource() Resource { return t.identity.Resource }

// Identity 握手身份
func (t *Transport) Identity() Identity { return t.identity }

// Variant 传输变体
func (t *Transport) Variant() *Variant { return t.variant }

// Group 注册的广播组
func (t *Transport) Group() string { return t.group }

// Cooldown 冷却时间
func (t *Transport) Cooldown() time.Duration { return t.cooldown }

// Connected 是否处于连接状态
func (t *Transport) Connected() bool { return t.connected.Load() }

// SetupError 握手失败原因，成功或未握手时为 nil
func (t *Transport) SetupError() *apperr.Error { return t.setupErr }

// Pending 队列中待发送的消息数
func (t *Transport) Pending() int { return t.queue.len() }
