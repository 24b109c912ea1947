package bridge

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
)

// AMQPConfig AMQP 事件源配置
type AMQPConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	URL         string `mapstructure:"url" yaml:"url"`
	Queue       string `mapstructure:"queue" yaml:"queue"`
	Exchange    string `mapstructure:"exchange" yaml:"exchange"`       // 非空时声明队列并绑定
	RoutingKey  string `mapstructure:"routing_key" yaml:"routing_key"` // 绑定键，默认 #
	ConsumerTag string `mapstructure:"consumer_tag" yaml:"consumer_tag"`
	Prefetch    int    `mapstructure:"prefetch" yaml:"prefetch"`
}

// AMQPSource AMQP 队列事件源
type AMQPSource struct {
	cfg        AMQPConfig
	dispatcher *Dispatcher
	log        logger.Logger
	dial       func(url string) (*amqp.Connection, error)
}

// NewAMQPSource 创建 AMQP 事件源
func NewAMQPSource(cfg AMQPConfig, d *Dispatcher, log logger.Logger) *AMQPSource {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "#"
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "eventpush"
	}
	return &AMQPSource{cfg: cfg, dispatcher: d, log: log, dial: amqp.Dial}
}

// Name 实现 Source
func (s *AMQPSource) Name() string { return "amqp" }

// Run 实现 Source
func (s *AMQPSource) Run(ctx context.Context) error {
	conn, err := s.dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if s.cfg.Prefetch > 0 {
		if err := ch.Qos(s.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("amqp qos: %w", err)
		}
	}

	if s.cfg.Exchange != "" {
		if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("amqp declare queue: %w", err)
		}
		if err := ch.QueueBind(s.cfg.Queue, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("amqp bind queue: %w", err)
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, s.cfg.Queue, s.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrSourceClosed
			}
			s.handle(ctx, d)
		}
	}
}

// handle 分发成功后确认；无法解码的消息拒绝且不重新入队
func (s *AMQPSource) handle(ctx context.Context, d amqp.Delivery) {
	if _, err := s.dispatcher.Dispatch(ctx, s.Name(), d.Body, d.RoutingKey); err != nil {
		s.log.Warn("rejecting undecodable amqp delivery",
			zap.String("routing_key", d.RoutingKey),
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Error(err),
		)
		if nerr := d.Nack(false, false); nerr != nil {
			s.log.Warn("amqp nack failed", zap.Error(nerr))
		}
		return
	}
	if err := d.Ack(false); err != nil {
		s.log.Warn("amqp ack failed", zap.Error(err))
	}
}
