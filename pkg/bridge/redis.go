package bridge

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
)

// RedisSource Redis Pub/Sub 事件源
type RedisSource struct {
	client     redis.UniversalClient
	patterns   []string
	dispatcher *Dispatcher
	log        logger.Logger
}

// NewRedisSource 创建 Redis 事件源，patterns 为 PSUBSCRIBE 频道模式
func NewRedisSource(client redis.UniversalClient, patterns []string, d *Dispatcher, log logger.Logger) *RedisSource {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisSource{client: client, patterns: patterns, dispatcher: d, log: log}
}

// Name 实现 Source
func (s *RedisSource) Name() string { return "redis" }

// Run 实现 Source
func (s *RedisSource) Run(ctx context.Context) error {
	ps := s.client.PSubscribe(ctx, s.patterns...)
	defer ps.Close()

	// 等待订阅确认，连接失败在此处返回
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrSourceClosed
			}
			s.handle(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *RedisSource) handle(ctx context.Context, channel string, payload []byte) {
	if _, err := s.dispatcher.Dispatch(ctx, s.Name(), payload, channelResource(channel)); err != nil {
		s.log.Warn("dropping undecodable redis event",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// channelResource 取频道名最后一段作为默认资源名，如 eventpush:db1 -> db1
func channelResource(channel string) string {
	i := strings.LastIndexByte(channel, ':')
	if i < 0 || i == len(channel)-1 {
		return ""
	}
	return channel[i+1:]
}
