package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
)

// Manager 事件推送管理器
//
// 负责端点匹配、连接数限制、握手、升级以及传输的生命周期。
type Manager struct {
	router   *Router
	registry *Registry
	pool     *ConnectionPool
	events   *EventBus
	config   *Config
	upgrader *Upgrader
	metrics  Metrics
	log      logger.Logger

	// 生命周期，closed 与 wg.Add 由 mu 保护
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewManager 创建管理器
func NewManager(router *Router, registry *Registry, opts ...Option) (*Manager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Codec == nil {
		config.Codec = DefaultCodec
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	router.Freeze()

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		router:   router,
		registry: registry,
		pool:     NewConnectionPool(config.MaxConnections),
		events:   NewEventBus(config.EventWorkers, config.EventQueueSize),
		config:   config,
		upgrader: NewUpgrader(config.UpgraderConfig, config.HandshakeTimeout),
		metrics:  config.Metrics,
		log:      config.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// ServeHTTP 实现 http.Handler
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = m.HandleUpgrade(w, r)
}

// HandleUpgrade 处理一次连接请求：匹配端点、握手、升级并在后台运行传输
//
// 握手期间即计入 wg，Shutdown 会等待进行中的握手结束。
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if !m.track() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return ErrManagerClosed
	}
	running := false
	defer func() {
		if !running {
			m.wg.Done()
		}
	}()

	variant, err := m.router.Match(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown endpoint")
		return err
	}

	// 握手前预占名额
	if err := m.pool.Reserve(); err != nil {
		m.reject(variant, "", http.StatusServiceUnavailable, err)
		writeError(w, http.StatusServiceUnavailable, "too many connections")
		return err
	}
	reserved := true
	defer func() {
		if reserved {
			m.pool.Release()
		}
	}()

	t := NewTransport(variant, m.registry,
		WithTransportLogger(m.log),
		WithTransportCodec(m.config.Codec),
		WithTransportMetrics(m.metrics),
		WithTransportConfig(m.config.transportConfig()),
	)

	if !t.TrySetup(r.Context(), w, r) {
		verr := t.SetupError()
		m.reject(variant, t.ConnID(), verr.Status(), verr)
		return verr
	}

	conn, err := m.upgrader.Upgrade(w, r)
	if err != nil {
		t.Abort()
		m.log.WarnContext(r.Context(), "websocket upgrade failed",
			zap.String("conn_id", t.ConnID()),
			zap.String("variant", variant.Name),
			zap.Error(err),
		)
		return err
	}

	if err := m.pool.Add(t); err != nil {
		t.Abort()
		_ = conn.Close()
		return err
	}
	reserved = false

	m.metrics.IncrementConnections(variant.Name)
	m.events.Publish(Event{
		Type:     EventTransportConnected,
		ConnID:   t.ConnID(),
		Variant:  variant.Name,
		Resource: t.ResourceName(),
	})
	m.log.InfoContext(r.Context(), "websocket connected",
		zap.String("conn_id", t.ConnID()),
		zap.String("id", t.ID()),
		zap.String("variant", variant.Name),
		zap.String("resource", t.ResourceName()),
		zap.Duration("cooldown", t.Cooldown()),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	runCtx := m.ctx
	if traceID := logger.TraceIDFromContext(r.Context()); traceID != "" {
		runCtx = logger.WithTraceID(runCtx, traceID)
	}

	running = true
	go func() {
		defer m.wg.Done()
		m.run(runCtx, t, conn)
	}()

	return nil
}

// track 未关闭时登记一个进行中的请求
func (m *Manager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	return true
}

// run 运行传输并在结束后释放资源
func (m *Manager) run(ctx context.Context, t *Transport, conn Conn) {
	start := time.Now()
	err := t.Run(ctx, conn)
	_ = conn.Close()

	m.pool.Remove(t.ConnID())
	m.pool.Release()
	m.metrics.DecrementConnections(t.Variant().Name)
	m.events.Publish(Event{
		Type:     EventTransportDisconnected,
		ConnID:   t.ConnID(),
		Variant:  t.Variant().Name,
		Resource: t.ResourceName(),
		Err:      err,
	})

	fields := []zap.Field{
		zap.String("conn_id", t.ConnID()),
		zap.String("variant", t.Variant().Name),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		m.log.Warn("websocket disconnected with error", append(fields, zap.Error(err))...)
		return
	}
	m.log.Info("websocket disconnected", fields...)
}

// reject 记录握手拒绝
func (m *Manager) reject(v *Variant, connID string, status int, err error) {
	m.events.Publish(Event{
		Type:    EventTransportRejected,
		ConnID:  connID,
		Variant: v.Name,
		Status:  status,
		Err:     err,
	})
}

// Shutdown 优雅关闭：取消所有传输并等待其退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.events.Close()
	return err
}

// Subscribe 订阅生命周期事件
func (m *Manager) Subscribe(eventType EventType, handler EventHandler) {
	m.events.Subscribe(eventType, handler)
}

// Registry 广播注册表
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Router 端点路由
func (m *Manager) Router() *Router {
	return m.router
}

// GetTransport 按连接 ID 获取传输
func (m *Manager) GetTransport(connID string) (*Transport, bool) {
	return m.pool.Get(connID)
}

// ConnectionCount 当前连接数
func (m *Manager) ConnectionCount() int {
	return m.pool.Count()
}
