package eventpush

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/middleware"
	"github.com/tokmz/eventpush/pkg/logger"
	"github.com/tokmz/eventpush/pkg/ws"
)

// resourcePrefixes 资源路径前缀，空串表示系统资源
var resourcePrefixes = []string{"", "/databases/:name", "/fs/:name", "/counters/:name"}

// Engine HTTP 引擎：在 gin 上挂载 websocket 端点、健康检查和指标
type Engine struct {
	config  *Config
	engine  *gin.Engine
	server  *http.Server
	manager *ws.Manager
	stats   *ws.Stats
	log     logger.Logger

	// 限流清理协程的生命周期
	ctx    context.Context
	cancel context.CancelFunc

	closing atomic.Bool
}

// New 创建一个新的 Engine 实例，使用 Options 模式配置
// stats 为 nil 时不注册 /stats
func New(manager *ws.Manager, stats *ws.Stats, opts ...Option) *Engine {
	// 应用默认配置
	config := defaultConfig()

	// 应用用户提供的选项
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	// 设置 Gin 模式（全局状态）
	if gin.Mode() == gin.DebugMode || config.Mode != gin.DebugMode {
		gin.SetMode(config.Mode)
	}

	// 静默 Gin 默认输出，由 banner 自行打印
	silenceGin()

	ginEngine := gin.New()

	// 添加默认 Recovery 中间件（防止 panic 导致服务崩溃）
	ginEngine.Use(gin.Recovery())

	// 设置信任的代理
	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			config.Logger.Warn("设置信任代理失败", zap.Error(err))
		}
	}

	if config.Tracing {
		ginEngine.Use(middleware.Tracing(&middleware.TracingConfig{ExcludePaths: []string{"/healthz"}}))
	}
	ginEngine.Use(middleware.Logger(config.Logger, &middleware.LoggerConfig{
		ExcludePaths: []string{"/healthz", "/stats"},
	}))

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		config:  config,
		engine:  ginEngine,
		manager: manager,
		stats:   stats,
		log:     config.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	e.registerRoutes()

	return e
}

// registerRoutes 注册每个资源前缀与变体后缀的组合
func (e *Engine) registerRoutes() {
	e.engine.GET("/healthz", e.healthz)
	if e.stats != nil {
		e.engine.GET("/stats", e.statsHandler)
	}

	group := e.engine.Group("")
	if e.config.RateLimit != nil {
		group.Use(middleware.RateLimiter(e.ctx, e.config.RateLimit))
	}
	for _, v := range e.manager.Router().Variants() {
		for _, prefix := range resourcePrefixes {
			group.GET(prefix+v.Suffix, e.upgrade)
		}
	}

	// 其余路径交给 manager，返回 {"Error":"unknown endpoint"}
	e.engine.NoRoute(e.upgrade)
}

// upgrade 交给 manager 完成握手和升级
func (e *Engine) upgrade(c *gin.Context) {
	if err := e.manager.HandleUpgrade(c.Writer, c.Request); err != nil {
		_ = c.Error(err)
	}
}

func (e *Engine) healthz(c *gin.Context) {
	h := Health{Status: "ok", Connections: e.manager.ConnectionCount()}
	if e.closing.Load() {
		h.Status = "shutting_down"
		respond(c, http.StatusServiceUnavailable, h, "shutting down")
		return
	}
	success(c, h)
}

func (e *Engine) statsHandler(c *gin.Context) {
	success(c, e.stats.Snapshot())
}

// Handler 返回 http.Handler（测试或自定义 server 使用）
func (e *Engine) Handler() http.Handler {
	return e.engine
}

// Routes 已注册的路由
func (e *Engine) Routes() gin.RoutesInfo {
	return e.engine.Routes()
}

// Run 启动 HTTP 服务器，收到 SIGINT/SIGTERM 或 ctx 结束时优雅关机
func (e *Engine) Run(ctx context.Context, addr ...string) error {
	// 确定监听地址
	address := e.config.Server.Addr
	if len(addr) > 0 && addr[0] != "" {
		address = addr[0]
	}

	e.server = &http.Server{
		Addr:              address,
		Handler:           e.engine,
		ReadHeaderTimeout: e.config.Server.ReadHeaderTimeout,
		IdleTimeout:       e.config.Server.IdleTimeout,
		MaxHeaderBytes:    e.config.Server.MaxHeaderBytes,
	}

	if e.config.Banner {
		e.printBanner(address)
	}

	return e.serve(ctx, func() error {
		return e.server.ListenAndServe()
	})
}

// serve 统一的服务器启动和优雅关机逻辑
func (e *Engine) serve(ctx context.Context, startFunc func() error) error {
	errChan := make(chan error, 1)

	go func() {
		if err := startFunc(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	e.log.Info("server started", zap.String("addr", e.server.Addr))

	// 等待中断信号、ctx 结束或启动错误
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		e.cancel()
		return err
	case sig := <-quit:
		e.log.Info("正在关闭服务器...", zap.String("signal", sig.String()))
	case <-ctx.Done():
		e.log.Info("正在关闭服务器...", zap.Error(ctx.Err()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.config.Shutdown.Timeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// Shutdown 优雅关机：关机前回调、关闭所有传输、关闭 HTTP 服务器、关机后回调
//
// websocket 连接在升级后已脱离 http.Server 的管理，因此先关闭 manager。
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}

	if e.config.Shutdown.BeforeShutdown != nil {
		e.config.Shutdown.BeforeShutdown()
	}

	var errs []error
	if err := e.manager.Shutdown(ctx); err != nil {
		e.log.Warn("websocket 传输未能全部退出", zap.Error(err))
		errs = append(errs, err)
	}
	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			e.log.Error("服务器强制关闭", zap.Error(err))
			errs = append(errs, err)
		}
	}
	e.cancel()

	if e.config.Shutdown.AfterShutdown != nil {
		e.config.Shutdown.AfterShutdown()
	}

	e.log.Info("服务器已退出")
	return errors.Join(errs...)
}
