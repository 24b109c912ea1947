package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/eventpush/pkg/logger"
)

// TracingConfig 链路追踪中间件配置
type TracingConfig struct {
	TracerName   string   // 默认 eventpush.http
	ExcludePaths []string // 不创建 span 的路径
}

// Tracing 为每个请求创建 server span。
//
// 上游 traceparent 会被继承，trace id 写入请求 context 供日志和传输层使用。响应头中的
// traceparent 在 handler 之前注入，升级为 websocket 后响应头不可再写。
// span 名称为 "METHOD 路由模板"，未匹配路由时使用原始路径。
func Tracing(cfg *TracingConfig) gin.HandlerFunc {
	name := "eventpush.http"
	skip := make(map[string]struct{})
	if cfg != nil {
		if cfg.TracerName != "" {
			name = cfg.TracerName
		}
		for _, p := range cfg.ExcludePaths {
			skip[p] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		// Provider 可能晚于中间件初始化，每次请求时从全局获取
		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		route := c.FullPath()
		spanName := c.Request.Method + " " + route
		if route == "" {
			spanName = c.Request.Method + " " + c.Request.URL.Path
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.URLPath(c.Request.URL.Path),
			semconv.ServerAddress(c.Request.Host),
			semconv.UserAgentOriginalKey.String(c.Request.UserAgent()),
			semconv.ClientAddressKey.String(c.ClientIP()),
			attribute.Bool("ws.upgrade", c.IsWebsocket()),
		}
		if route != "" {
			attrs = append(attrs, semconv.HTTPRouteKey.String(route))
		}
		if res := c.Param("name"); res != "" {
			attrs = append(attrs, attribute.String("ws.resource", res))
		}

		ctx, span := otel.Tracer(name).Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = logger.WithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
