package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tokmz/eventpush/pkg/etag"
	"github.com/tokmz/eventpush/pkg/ws"
)

type published struct {
	kind     Kind
	resource string
	value    any
}

type recordingPublisher struct {
	mu   sync.Mutex
	seen []published
}

func (p *recordingPublisher) PublishChange(resource string, n ws.ChangeNotification) int {
	p.add(published{KindChange, resource, n})
	return 1
}

func (p *recordingPublisher) PublishTrace(resource string, t ws.TrafficTrace) int {
	p.add(published{KindTrace, resource, t})
	return 2
}

func (p *recordingPublisher) PublishLog(rec ws.LogRecord) int {
	p.add(published{KindLog, "", rec})
	return 1
}

func (p *recordingPublisher) add(v published) {
	p.mu.Lock()
	p.seen = append(p.seen, v)
	p.mu.Unlock()
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.seen...)
}

func mustEncode(t *testing.T, kind Kind, resource string, payload any) []byte {
	t.Helper()
	data, err := Encode(kind, resource, payload)
	require.NoError(t, err)
	return data
}

func TestDispatchChange(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub)
	change := ws.ChangeNotification{Type: ws.ChangePut, ID: "users/1", Etag: etag.New(1, 5)}

	n, err := d.Dispatch(context.Background(), "test", mustEncode(t, KindChange, "db1", change), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	seen := pub.all()
	require.Len(t, seen, 1)
	assert.Equal(t, "db1", seen[0].resource)
	assert.Equal(t, change, seen[0].value)
}

func TestDispatchFallbackResource(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub)
	change := ws.ChangeNotification{Type: ws.ChangeDelete, ID: "users/2"}

	_, err := d.Dispatch(context.Background(), "test", mustEncode(t, KindChange, "", change), "db2")
	require.NoError(t, err)
	assert.Equal(t, "db2", pub.all()[0].resource)

	_, err = d.Dispatch(context.Background(), "test", mustEncode(t, KindChange, "", change), "")
	assert.ErrorIs(t, err, ErrMissingResource)
}

func TestDispatchTraceAndLog(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub)
	ctx := context.Background()

	trace := ws.TrafficTrace{ResourceName: "db1", Method: "GET", URL: "/docs", StatusCode: 200, ElapsedMs: 3}
	n, err := d.Dispatch(ctx, "test", mustEncode(t, KindTrace, "", trace), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := ws.LogRecord{Level: ws.LogWarn, Message: "disk almost full", Logger: "storage"}
	_, err = d.Dispatch(ctx, "test", mustEncode(t, KindLog, "", rec), "")
	require.NoError(t, err)

	seen := pub.all()
	require.Len(t, seen, 2)
	assert.Equal(t, "db1", seen[0].resource)
	assert.Equal(t, "GET", seen[0].value.(ws.TrafficTrace).Method)
	assert.Equal(t, ws.LogWarn, seen[1].value.(ws.LogRecord).Level)
}

func TestDispatchRejects(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{})
	ctx := context.Background()

	_, err := d.Dispatch(ctx, "test", []byte(`{"kind":"bogus","payload":{}}`), "")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = d.Dispatch(ctx, "test", []byte(`not json`), "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = d.Dispatch(ctx, "test", []byte(`{"kind":"log"}`), "")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = d.Dispatch(ctx, "test", []byte(`{"kind":"change","resource":"db1","payload":{"Type":"Exploded"}}`), "")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestChannelResource(t *testing.T) {
	assert.Equal(t, "db1", channelResource("eventpush:db1"))
	assert.Equal(t, "db1", channelResource("a:b:db1"))
	assert.Equal(t, "", channelResource("eventpush"))
	assert.Equal(t, "", channelResource("eventpush:"))
}

type fakeAcknowledger struct {
	acked   []uint64
	nacked  []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestAMQPHandleAcksAndNacks(t *testing.T) {
	pub := &recordingPublisher{}
	src := NewAMQPSource(AMQPConfig{Queue: "q"}, NewDispatcher(pub), nil)
	ack := &fakeAcknowledger{}

	good := amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		RoutingKey:   "db1",
		Body:         mustEncode(t, KindChange, "", ws.ChangeNotification{ID: "users/1"}),
	}
	bad := amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("garbage")}

	src.handle(context.Background(), good)
	src.handle(context.Background(), bad)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, []uint64{2}, ack.nacked)
	assert.Equal(t, []bool{false}, ack.requeue)
	require.Len(t, pub.all(), 1)
	assert.Equal(t, "db1", pub.all()[0].resource)
}

func TestAMQPRunDialFailure(t *testing.T) {
	src := NewAMQPSource(AMQPConfig{URL: "amqp://nowhere", Queue: "q"}, NewDispatcher(&recordingPublisher{}), nil)
	src.dial = func(string) (*amqp.Connection, error) {
		return nil, errors.New("refused")
	}
	err := src.Run(context.Background())
	assert.ErrorContains(t, err, "refused")
	assert.Equal(t, "amqp", src.Name())
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 {
	return nil
}

func (s *fakeSession) MemberID() string {
	return "m"
}

func (s *fakeSession) GenerationID() int32 {
	return 1
}

func (s *fakeSession) MarkOffset(string, int32, int64, string) {}

func (s *fakeSession) Commit() {}

func (s *fakeSession) ResetOffset(string, int32, int64, string) {}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

func (s *fakeSession) Context() context.Context {
	return s.ctx
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string {
	return "eventpush"
}

func (c *fakeClaim) Partition() int32 {
	return 0
}

func (c *fakeClaim) InitialOffset() int64 {
	return 0
}

func (c *fakeClaim) HighWaterMarkOffset() int64 {
	return 0
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage {
	return c.messages
}

func TestKafkaConsumeClaimMarksEveryMessage(t *testing.T) {
	pub := &recordingPublisher{}
	src := NewKafkaSource(KafkaConfig{Topics: []string{"eventpush"}}, NewDispatcher(pub), nil)
	h := &kafkaHandler{source: src}

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 2)}
	claim.messages <- &sarama.ConsumerMessage{
		Topic:  "eventpush",
		Offset: 10,
		Key:    []byte("db1"),
		Value:  mustEncode(t, KindChange, "", ws.ChangeNotification{ID: "users/1"}),
	}
	claim.messages <- &sarama.ConsumerMessage{Topic: "eventpush", Offset: 11, Value: []byte("garbage")}
	close(claim.messages)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, claim))

	assert.Equal(t, []int64{10, 11}, sess.marked)
	require.Len(t, pub.all(), 1)
	assert.Equal(t, "db1", pub.all()[0].resource)
}

func TestKafkaConsumeClaimStopsOnContext(t *testing.T) {
	src := NewKafkaSource(KafkaConfig{}, NewDispatcher(&recordingPublisher{}), nil)
	h := &kafkaHandler{source: src}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.ConsumeClaim(&fakeSession{ctx: ctx}, &fakeClaim{messages: make(chan *sarama.ConsumerMessage)})
	assert.NoError(t, err)
}

func TestKafkaSaramaConfig(t *testing.T) {
	cfg, err := KafkaConfig{InitialOffset: "oldest", Version: "3.6.0"}.saramaConfig()
	require.NoError(t, err)
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.True(t, cfg.Consumer.Return.Errors)

	_, err = KafkaConfig{InitialOffset: "middle"}.saramaConfig()
	assert.Error(t, err)

	_, err = KafkaConfig{Version: "not-a-version"}.saramaConfig()
	assert.Error(t, err)
}

type flakySource struct {
	runs  atomic.Int32
	fails int32
}

func (s *flakySource) Name() string { return "flaky" }

func (s *flakySource) Run(ctx context.Context) error {
	if s.runs.Add(1) <= s.fails {
		return errors.New("broker down")
	}
	<-ctx.Done()
	return nil
}

func TestSupervisorRestartsFailedSource(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := &flakySource{fails: 2}
	sup := NewSupervisor(nil, src).WithBackoff(Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	assert.Eventually(t, func() bool { return src.runs.Load() == 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestBuild(t *testing.T) {
	sup, closer, err := Build(context.Background(), DefaultConfig(), &recordingPublisher{}, nil)
	require.NoError(t, err)
	assert.Empty(t, sup.Sources())
	assert.NoError(t, closer())
	assert.False(t, DefaultConfig().Enabled())

	cfg := DefaultConfig()
	cfg.AMQP.Enabled = true
	cfg.Kafka.Enabled = true
	sup, _, err = Build(context.Background(), cfg, &recordingPublisher{}, nil)
	require.NoError(t, err)
	require.Len(t, sup.Sources(), 2)
	assert.Equal(t, "amqp", sup.Sources()[0].Name())
	assert.Equal(t, "kafka", sup.Sources()[1].Name())

	cfg.Kafka.InitialOffset = "sideways"
	_, _, err = Build(context.Background(), cfg, &recordingPublisher{}, nil)
	assert.Error(t, err)
}
