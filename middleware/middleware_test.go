package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/eventpush/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type entries struct {
	mu   sync.Mutex
	list []zapcore.Entry
}

func (e *entries) hook() logger.Hook {
	return logger.HookFunc(func(entry zapcore.Entry, _ []zapcore.Field) error {
		e.mu.Lock()
		e.list = append(e.list, entry)
		e.mu.Unlock()
		return nil
	})
}

func (e *entries) levels() []zapcore.Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]zapcore.Level, 0, len(e.list))
	for _, en := range e.list {
		out = append(out, en.Level)
	}
	return out
}

func newTestLogger(t *testing.T, e *entries) logger.Logger {
	t.Helper()
	log, err := logger.NewWithOptions(
		logger.WithFileOutput(filepath.Join(t.TempDir(), "test.log")),
		logger.WithHook(e.hook()),
	)
	require.NoError(t, err)
	return log
}

func TestLoggerLevelsByStatus(t *testing.T) {
	e := &entries{}
	log := newTestLogger(t, e)
	r := gin.New()
	r.Use(Logger(log, &LoggerConfig{ExcludePaths: []string{"/healthz"}}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/ok", "/missing", "/boom", "/healthz"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}, e.levels())
}

func TestLoggerHandshakeRejected(t *testing.T) {
	e := &entries{}
	r := gin.New()
	r.Use(Logger(newTestLogger(t, e), nil))
	r.GET("/changes/websocket", func(c *gin.Context) { c.Status(http.StatusUnauthorized) })

	req := httptest.NewRequest(http.MethodGet, "/changes/websocket", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)

	e.mu.Lock()
	defer e.mu.Unlock()
	require.Len(t, e.list, 1)
	assert.Equal(t, "handshake rejected", e.list[0].Message)
	assert.Equal(t, zapcore.WarnLevel, e.list[0].Level)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := &RateLimiterConfig{
		RequestsPerSecond: 1,
		Burst:             2,
		KeyFunc:           func(c *gin.Context) string { return c.GetHeader("X-Client") },
	}
	cfg.normalize()
	b := newBuckets(cfg.RequestsPerSecond, cfg.Burst)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	ws := r.Group("", rateLimit(ctx, cfg, b))
	ws.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path, client string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Client", client)
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("/ws", "a").Code)
	assert.Equal(t, http.StatusOK, do("/ws", "a").Code)
	limited := do("/ws", "a")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do("/ws", "b").Code)
	assert.Equal(t, http.StatusOK, do("/healthz", "a").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("/ws", "a").Code)
}

func TestRateLimiterEvict(t *testing.T) {
	b := newBuckets(1, 1)
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	b.take("a")
	now = now.Add(time.Hour)
	b.take("b")

	b.evict(30 * time.Minute)
	assert.Len(t, b.m, 1)
	assert.Contains(t, b.m, "b")
}

func TestTracingCreatesServerSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	var traceID string
	r := gin.New()
	r.Use(Tracing(&TracingConfig{TracerName: "test", ExcludePaths: []string{"/healthz"}}))
	r.GET("/databases/:name/changes/websocket", func(c *gin.Context) {
		traceID = logger.TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusServiceUnavailable)
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/databases/db1/changes/websocket", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /databases/:name/changes/websocket", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.NotEmpty(t, w.Header().Get("traceparent"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("ws.resource", "db1"))
}
