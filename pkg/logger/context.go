package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey 日志上下文键
type contextKey string

const (
	traceIDKey      contextKey = "trace_id"
	connIDKey       contextKey = "conn_id"
	subscriptionKey contextKey = "subscription_id"
	resourceKey     contextKey = "resource"
)

// WithTraceID 在 Context 中设置 TraceID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithConnID 在 Context 中设置连接 ID
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// WithSubscription 在 Context 中设置订阅 ID
func WithSubscription(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, subscriptionKey, id)
}

// WithResource 在 Context 中设置资源名
func WithResource(ctx context.Context, resource string) context.Context {
	return context.WithValue(ctx, resourceKey, resource)
}

// TraceIDFromContext 获取 TraceID，优先使用显式设置的值，其次是 OpenTelemetry Span
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		return traceID
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// ConnIDFromContext 获取连接 ID
func ConnIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connIDKey).(string)
	return id
}

// fieldsFromContext 从 Context 提取日志字段；withSpan 为 true 时附带 span_id
func fieldsFromContext(ctx context.Context, withSpan bool) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 5)

	if traceID := TraceIDFromContext(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}
	if withSpan {
		if id := spanID(ctx); id != "" {
			fields = append(fields, zap.String("span_id", id))
		}
	}
	if id, ok := ctx.Value(connIDKey).(string); ok && id != "" {
		fields = append(fields, zap.String("conn_id", id))
	}
	if id, ok := ctx.Value(subscriptionKey).(string); ok && id != "" {
		fields = append(fields, zap.String("subscription_id", id))
	}
	if res, ok := ctx.Value(resourceKey).(string); ok && res != "" {
		fields = append(fields, zap.String("resource", res))
	}
	return fields
}
