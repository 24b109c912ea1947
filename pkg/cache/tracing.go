package cache

import (
	"context"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	cacheTracerName = "eventpush.redis"
)

// tracingHook 为每条 Redis 命令创建客户端 span
type tracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook 创建 Redis 链路追踪钩子
func NewTracingHook() redis.Hook {
	return &tracingHook{tracer: otel.Tracer(cacheTracerName)}
}

// DialHook 不追踪拨号
func (h *tracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// ProcessHook 追踪单条命令
func (h *tracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := h.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", cmd.Name()),
		)

		err := next(ctx, cmd)
		finish(span, err)
		return err
	}
}

// ProcessPipelineHook 追踪管道命令
func (h *tracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := h.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.String("db.system", "redis"),
			attribute.String("db.operation", strings.Join(names, " ")),
			attribute.Int("redis.num_cmd", len(cmds)),
		)

		err := next(ctx, cmds)
		finish(span, err)
		return err
	}
}

func finish(span trace.Span, err error) {
	// redis.Nil 是正常的未命中
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
