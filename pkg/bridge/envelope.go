package bridge

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tokmz/eventpush/pkg/tracing"
	"github.com/tokmz/eventpush/pkg/ws"
)

// Kind 信封类型
type Kind string

const (
	KindChange Kind = "change"
	KindTrace  Kind = "trace"
	KindLog    Kind = "log"
)

// Envelope 事件信封
type Envelope struct {
	Kind     Kind            `json:"kind"`
	Resource string          `json:"resource,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Decode 解码信封
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return env, nil
}

// Encode 编码信封（生产者与测试使用）
func Encode(kind Kind, resource string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Resource: resource, Payload: raw})
}

// Publisher 分发目标，*ws.Publisher 实现该接口
type Publisher interface {
	PublishChange(resource string, n ws.ChangeNotification) int
	PublishTrace(resource string, t ws.TrafficTrace) int
	PublishLog(rec ws.LogRecord) int
}

var _ Publisher = (*ws.Publisher)(nil)

// Dispatcher 解码信封并发布
type Dispatcher struct {
	pub Publisher
}

// NewDispatcher 创建分发器
func NewDispatcher(pub Publisher) *Dispatcher {
	return &Dispatcher{pub: pub}
}

// Dispatch 解码并发布，返回投递到的连接数
//
// fallbackResource 在信封未携带资源名时使用。
func (d *Dispatcher) Dispatch(ctx context.Context, source string, data []byte, fallbackResource string) (int, error) {
	_, span := tracing.StartSpan(ctx, "bridge.dispatch", attribute.String("bridge.source", source))
	defer span.End()

	n, err := d.dispatch(data, fallbackResource)
	if err != nil {
		tracing.RecordError(span, err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("bridge.delivered", n))
	return n, nil
}

func (d *Dispatcher) dispatch(data []byte, fallbackResource string) (int, error) {
	env, err := Decode(data)
	if err != nil {
		return 0, err
	}
	resource := env.Resource
	if resource == "" {
		resource = fallbackResource
	}

	switch env.Kind {
	case KindChange:
		if resource == "" {
			return 0, ErrMissingResource
		}
		var n ws.ChangeNotification
		if err := json.Unmarshal(env.Payload, &n); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return d.pub.PublishChange(resource, n), nil

	case KindTrace:
		var t ws.TrafficTrace
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		if resource == "" {
			resource = t.ResourceName
		}
		return d.pub.PublishTrace(resource, t), nil

	case KindLog:
		var rec ws.LogRecord
		if err := json.Unmarshal(env.Payload, &rec); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return d.pub.PublishLog(rec), nil

	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}
