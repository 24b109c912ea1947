package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tokmz/eventpush/pkg/logger"
)

// KafkaConfig Kafka 事件源配置
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers       []string `mapstructure:"brokers" yaml:"brokers"`
	Topics        []string `mapstructure:"topics" yaml:"topics"`
	GroupID       string   `mapstructure:"group_id" yaml:"group_id"`
	Version       string   `mapstructure:"version" yaml:"version"`               // 如 3.6.0，空为 sarama 默认
	InitialOffset string   `mapstructure:"initial_offset" yaml:"initial_offset"` // newest | oldest
}

// saramaConfig 转换为 sarama 配置
func (c KafkaConfig) saramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "eventpush"
	cfg.Consumer.Return.Errors = true

	if c.Version != "" {
		v, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("kafka version: %w", err)
		}
		cfg.Version = v
	}

	switch c.InitialOffset {
	case "", "newest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		return nil, fmt.Errorf("kafka initial offset %q: want newest or oldest", c.InitialOffset)
	}
	return cfg, cfg.Validate()
}

// KafkaSource Kafka 消费组事件源
type KafkaSource struct {
	cfg        KafkaConfig
	dispatcher *Dispatcher
	log        logger.Logger
}

// NewKafkaSource 创建 Kafka 事件源
func NewKafkaSource(cfg KafkaConfig, d *Dispatcher, log logger.Logger) *KafkaSource {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "eventpush"
	}
	return &KafkaSource{cfg: cfg, dispatcher: d, log: log}
}

// Name 实现 Source
func (s *KafkaSource) Name() string { return "kafka" }

// Run 实现 Source
func (s *KafkaSource) Run(ctx context.Context) error {
	cfg, err := s.cfg.saramaConfig()
	if err != nil {
		return err
	}

	group, err := sarama.NewConsumerGroup(s.cfg.Brokers, s.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("kafka consumer group: %w", err)
	}
	defer group.Close()

	go func() {
		for err := range group.Errors() {
			s.log.Warn("kafka consumer error", zap.Error(err))
		}
	}()

	handler := &kafkaHandler{source: s}
	for {
		// 每次重平衡后 Consume 返回，需要重新加入
		if err := group.Consume(ctx, s.cfg.Topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// kafkaHandler 实现 sarama.ConsumerGroupHandler
type kafkaHandler struct {
	source *KafkaSource
}

func (h *kafkaHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *kafkaHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 分发后标记消息，无法解码的消息同样标记以免阻塞分区
func (h *kafkaHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if _, err := h.source.dispatcher.Dispatch(sess.Context(), h.source.Name(), msg.Value, string(msg.Key)); err != nil {
				h.source.log.Warn("skipping undecodable kafka message",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
