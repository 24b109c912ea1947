package eventpush

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/eventpush/middleware"
	"github.com/tokmz/eventpush/pkg/auth"
	"github.com/tokmz/eventpush/pkg/bridge"
	"github.com/tokmz/eventpush/pkg/cache"
	"github.com/tokmz/eventpush/pkg/config"
	"github.com/tokmz/eventpush/pkg/logger"
	"github.com/tokmz/eventpush/pkg/tracing"
	"github.com/tokmz/eventpush/pkg/ws"
)

// App 由 Settings 组装的完整服务：日志、认证、传输管理、事件源和 HTTP 引擎
type App struct {
	settings *config.Settings
	log      logger.Logger

	registry  *ws.Registry
	publisher *ws.Publisher
	stats     *ws.Stats
	manager   *ws.Manager
	engine    *Engine

	catalog  *auth.Catalog
	memStore *auth.MemoryTokenStore
	redis    redis.UniversalClient // 令牌存储使用的客户端

	bridges      *bridge.Supervisor
	closeBridges func() error
	tracer       *sdktrace.TracerProvider

	mu          sync.Mutex
	stopBridges context.CancelFunc
}

// NewApp 按配置组装服务，ctx 仅用于建立外部连接
func NewApp(ctx context.Context, s *config.Settings) (*App, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		settings: s,
		registry: ws.NewRegistry(),
		stats:    ws.NewStats(),
	}
	if err := a.build(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	s := a.settings

	// 日志写入同时转发到 admin-logs 组
	log, err := NewLogger(s.Log, a.registry)
	if err != nil {
		return err
	}
	a.log = log
	a.publisher = ws.NewPublisher(a.registry)

	if s.Tracing.Enabled {
		tc := s.Tracing
		if tc.ServiceVersion == "" {
			tc.ServiceVersion = Version
		}
		if a.tracer, err = tracing.NewTracerProvider(ctx, &tc); err != nil {
			return err
		}
	}

	validator, err := a.buildValidator(ctx)
	if err != nil {
		return err
	}

	router := ws.NewRouter()
	for _, v := range Variants(validator) {
		if err := router.Register(v); err != nil {
			return err
		}
	}

	a.manager, err = ws.NewManager(router, a.registry, WebSocketOptions(s.WebSocket, a.stats, a.log)...)
	if err != nil {
		return err
	}
	a.manager.Subscribe(ws.EventTransportRejected, func(e ws.Event) {
		a.log.Debug("websocket handshake rejected",
			zap.String("variant", e.Variant),
			zap.Int("status", e.Status),
			zap.Error(e.Err),
		)
	})

	if s.Bridges.Enabled() {
		a.bridges, a.closeBridges, err = bridge.Build(ctx, s.Bridges, a.publisher, a.log)
		if err != nil {
			return err
		}
	}

	a.engine = New(a.manager, a.stats, a.engineOptions()...)
	return nil
}

// Variants 标准变体集合：变更与验证使用普通验证器，流量与日志要求管理员
func Variants(validator *auth.Validator) []*ws.Variant {
	admin := validator.Admin()
	return []*ws.Variant{
		ws.ChangesVariant(validator),
		ws.TrafficWatchVariant(admin),
		ws.AdminLogsVariant(admin),
		ws.ValidateVariant(validator),
	}
}

// buildValidator 组装资源目录、令牌验证器和已用令牌存储
func (a *App) buildValidator(ctx context.Context) (*auth.Validator, error) {
	s := a.settings.Auth

	a.catalog = CatalogFromSettings(s.Resources)
	var resolver auth.Resolver = a.catalog
	if s.ResolverCacheTTL > 0 {
		resolver = auth.NewCachingResolver(a.catalog, s.ResolverCacheTTL)
	}

	var verifier *auth.Verifier
	if s.Token.Secret != "" {
		v, err := auth.NewVerifier(s.Token)
		if err != nil {
			return nil, err
		}
		verifier = v
	}

	var store auth.TokenStore
	switch s.Store.Type {
	case "redis":
		client, err := cache.NewRedisClient(ctx, &s.Store.Redis)
		if err != nil {
			return nil, err
		}
		a.redis = client
		store = auth.NewRedisTokenStore(client, s.Store.Prefix)
	default:
		a.memStore = auth.NewMemoryTokenStore(auth.MemoryTokenStoreConfig{})
		store = a.memStore
	}

	return auth.NewValidator(resolver, verifier, store,
		auth.WithAnonymous(s.AllowAnonymous),
		auth.WithValidatorLogger(a.log),
	), nil
}

func (a *App) engineOptions() []Option {
	s := a.settings.Server
	opts := []Option{
		WithMode(s.Mode),
		WithAddr(s.Addr),
		WithReadHeaderTimeout(s.ReadHeaderTimeout),
		WithShutdownTimeout(s.ShutdownTimeout),
		WithLogger(a.log),
		WithTracing(a.settings.Tracing.Enabled),
		WithBeforeShutdown(a.haltBridges),
	}
	if len(s.TrustedProxies) > 0 {
		opts = append(opts, WithTrustedProxies(s.TrustedProxies...))
	}
	if s.RateLimit.Enabled {
		opts = append(opts, WithRateLimit(&middleware.RateLimiterConfig{
			RequestsPerSecond: s.RateLimit.RequestsPerSecond,
			Burst:             s.RateLimit.Burst,
			Logger:            a.log,
		}))
	}
	return opts
}

// haltBridges 停止事件源，关机时先于传输关闭调用
func (a *App) haltBridges() {
	a.mu.Lock()
	stop := a.stopBridges
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Run 运行服务直到 ctx 结束或收到退出信号
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	bridgeCtx, stop := context.WithCancel(gctx)
	a.mu.Lock()
	a.stopBridges = stop
	a.mu.Unlock()
	defer stop()

	if a.memStore != nil {
		g.Go(func() error {
			a.memStore.Run(gctx)
			return nil
		})
	}
	if a.bridges != nil {
		g.Go(func() error {
			return a.bridges.Run(bridgeCtx)
		})
	}
	g.Go(func() error {
		return a.engine.Run(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reload 应用热更新的配置，目前只调整日志级别
func (a *App) Reload(s *config.Settings) {
	level, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		a.log.Warn("ignoring invalid log level", zap.String("level", s.Log.Level))
		return
	}
	if level != a.log.Level() {
		a.log.Info("log level changed", zap.String("from", a.log.Level().String()), zap.String("to", level.String()))
		a.log.SetLevel(level)
	}
}

// Close 释放外部资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.closeBridges != nil {
		errs = append(errs, a.closeBridges())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return errors.Join(errs...)
}

// Engine HTTP 引擎
func (a *App) Engine() *Engine {
	return a.engine
}

// Publisher 生产者入口
func (a *App) Publisher() *ws.Publisher {
	return a.publisher
}

// Catalog 资源目录，运行期可增删资源
func (a *App) Catalog() *auth.Catalog {
	return a.catalog
}

// Logger 服务日志
func (a *App) Logger() logger.Logger {
	return a.log
}

// CatalogFromSettings 由配置构建资源目录
func CatalogFromSettings(s config.ResourceSettings) *auth.Catalog {
	c := auth.NewCatalog()
	for _, name := range s.Databases {
		c.Add(auth.NewResource(ws.KindDatabase, name))
	}
	for _, name := range s.FileSystems {
		c.Add(auth.NewResource(ws.KindFileSystem, name))
	}
	for _, name := range s.Counters {
		c.Add(auth.NewResource(ws.KindCounters, name))
	}
	return c
}

// WebSocketOptions 将配置转换为 ws.Option
func WebSocketOptions(s config.WebSocketSettings, metrics ws.Metrics, log logger.Logger) []ws.Option {
	opts := []ws.Option{
		ws.WithMaxConnections(s.MaxConnections),
		ws.WithHeartbeatInterval(s.HeartbeatInterval),
		ws.WithWriteWait(s.WriteWait),
		ws.WithHandshakeTimeout(s.HandshakeTimeout),
		ws.WithMessageSizeLimit(s.MaxMessageSize),
		ws.WithEventBus(s.EventWorkers, s.EventQueueSize),
		ws.WithEnableCompression(s.EnableCompression),
		ws.WithMetrics(metrics),
		ws.WithLogger(log),
	}
	switch {
	case len(s.AllowedOrigins) == 1 && s.AllowedOrigins[0] == "*":
		opts = append(opts, ws.WithAllowAllOrigins())
	case len(s.AllowedOrigins) > 0:
		opts = append(opts, ws.WithCheckOriginWhitelist(s.AllowedOrigins))
	}
	return opts
}

// NewLogger 由配置构建日志，registry 非空时挂载 admin-logs 钩子
func NewLogger(s config.LogSettings, registry *ws.Registry) (logger.Logger, error) {
	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	cfg := &logger.Config{
		Name:    "eventpush",
		Level:   level,
		Format:  logger.Format(s.Format),
		Console: s.Console,
		Caller:  true,
	}
	if s.File != "" {
		cfg.Rotate = &logger.RotateConfig{
			Filename:   s.File,
			MaxSizeMB:  s.MaxSizeMB,
			MaxBackups: s.MaxBackups,
			MaxAgeDays: s.MaxAgeDays,
			Compress:   s.Compress,
		}
	}
	if s.Sampling {
		cfg.Sampling = &logger.SamplingConfig{}
	}
	if registry != nil {
		var adminLevel zapcore.Level
		if err := adminLevel.UnmarshalText([]byte(s.AdminLogLevel)); err != nil {
			adminLevel = zapcore.InfoLevel
		}
		cfg.Hooks = append(cfg.Hooks, ws.NewLogHook(registry, adminLevel))
	}
	return logger.New(cfg)
}
