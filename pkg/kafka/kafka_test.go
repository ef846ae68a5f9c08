package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeReader struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{ch: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.ch <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type funcHandler struct {
	topic string
	fn    func(context.Context, []byte) error
}

func (h funcHandler) Topic() string                              { return h.topic }
func (h funcHandler) Handle(ctx context.Context, b []byte) error { return h.fn(ctx, b) }

func TestProducerPublishEncodesValue(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")

	require.NoError(t, p.Publish(t.Context(), "events", []byte("AAPL"), map[string]int{"points": 5}))
	require.NoError(t, p.PublishMessage(t.Context(), "logs", "raw"))
	require.NoError(t, p.PublishBatch(t.Context(), "events", []Message{{Value: []byte("b"), Headers: map[string]string{"trace_id": "t1"}}}))

	msgs := w.written()
	require.Len(t, msgs, 3)
	assert.Equal(t, "events", msgs[0].Topic)
	assert.Equal(t, []byte("AAPL"), msgs[0].Key)
	var decoded map[string]int
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, 5, decoded["points"])
	assert.Equal(t, []byte("raw"), msgs[1].Value)
	assert.Nil(t, msgs[1].Key)
	assert.Equal(t, "t1", ExtractTraceID(msgs[2]))
}

func TestProducerPublishError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("broker down")}, "gzip")
	err := p.Publish(t.Context(), "events", nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func runConsumer(t *testing.T, r *fakeReader, h MessageHandler, hook ConsumerHook, opts ...ConsumerOption) *Consumer {
	t.Helper()
	base := []ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithReaderFactory(func(*ConsumerConfig, string) Reader { return r }),
		WithRetry(2, time.Millisecond, 2*time.Millisecond),
		WithHooks(hook),
	}
	c, err := NewConsumer(append(base, opts...)...)
	require.NoError(t, err)
	c.RegisterHandler(h)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "jobs", Offset: 7, Value: []byte("a")})
	var mu sync.Mutex
	calls := 0
	h := funcHandler{topic: "jobs", fn: func(context.Context, []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}}

	c := runConsumer(t, r, h, nil)
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(t.Context()))

	assert.Equal(t, []int64{7}, r.commits())
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestConsumerPermanentErrorGoesToDLQ(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "jobs", Offset: 3, Key: []byte("k"), Value: []byte("bad")})
	dlq := &fakeWriter{}
	calls := 0
	h := funcHandler{topic: "jobs", fn: func(context.Context, []byte) error {
		calls++
		return Permanent(errors.New("malformed"))
	}}

	c := runConsumer(t, r, h, nil, WithDeadLetter("jobs.dlq"), WithDeadLetterWriter(dlq))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(t.Context()))

	assert.Equal(t, 1, calls)
	msgs := dlq.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, "jobs.dlq", msgs[0].Topic)
	assert.Equal(t, []byte("bad"), msgs[0].Value)
	assert.Equal(t, "source_topic", msgs[0].Headers[0].Key)
}

func TestConsumerNoDLQLeavesUncommitted(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "jobs", Offset: 1})
	done := make(chan struct{})
	var once sync.Once
	h := funcHandler{topic: "jobs", fn: func(context.Context, []byte) error {
		return Permanent(errors.New("nope"))
	}}
	hook := HookFuncs{OnFailed: func(_ context.Context, d *Delivery, _ error) {
		assert.Equal(t, 1, d.Attempt)
		once.Do(func() { close(done) })
	}}

	c := runConsumer(t, r, h, hook)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler error not reported")
	}
	require.NoError(t, c.Stop(t.Context()))
	assert.Empty(t, r.commits())
}

func TestHookChainThreadsContextAndRecovers(t *testing.T) {
	d := &Delivery{Topic: "t", Msg: kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}}
	var order []string
	chain := chainHooks(TraceHook(), nil, HookFuncs{
		OnBefore: func(ctx context.Context, _ *Delivery) (context.Context, error) {
			assert.Equal(t, "abc", TraceIDFrom(ctx))
			return ctx, nil
		},
		OnAfter: func(context.Context, *Delivery, error) { order = append(order, "inner") },
	}, HookFuncs{OnAfter: func(context.Context, *Delivery, error) { order = append(order, "outer") }})
	ctx, err := chain.Before(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFrom(ctx))
	chain.After(ctx, d, nil)
	assert.Equal(t, []string{"outer", "inner"}, order)

	panicky := chainHooks(HookFuncs{OnBefore: func(context.Context, *Delivery) (context.Context, error) {
		panic("boom")
	}})
	_, err = panicky.Before(context.Background(), d)
	assert.ErrorIs(t, err, ErrHookPanic)
}

func TestConsumerHandlerPanicIsDeadLettered(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "jobs", Partition: 2, Offset: 9, Value: []byte("x")})
	dlq := &fakeWriter{}
	calls := 0
	h := funcHandler{topic: "jobs", fn: func(context.Context, []byte) error {
		calls++
		panic("nil map")
	}}

	c := runConsumer(t, r, h, nil, WithDeadLetter("jobs.dlq"), WithDeadLetterWriter(dlq))
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(t.Context()))

	assert.Equal(t, 1, calls)
	msgs := dlq.written()
	require.Len(t, msgs, 1)
	headers := map[string]string{}
	for _, h := range msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "2", headers["source_partition"])
	assert.Equal(t, "9", headers["source_offset"])
	assert.Contains(t, headers["error"], "nil map")
}

func TestConsumerDeadLetterFailureLeavesUncommitted(t *testing.T) {
	r := newFakeReader(kafka.Message{Topic: "jobs", Offset: 4})
	failed := make(chan struct{}, 1)
	h := funcHandler{topic: "jobs", fn: func(context.Context, []byte) error { return Permanent(errors.New("bad")) }}
	hook := HookFuncs{OnFailed: func(context.Context, *Delivery, error) { failed <- struct{}{} }}

	c := runConsumer(t, r, h, hook, WithDeadLetter("jobs.dlq"), WithDeadLetterWriter(&fakeWriter{err: errors.New("down")}))
	<-failed
	require.NoError(t, c.Stop(t.Context()))
	assert.Empty(t, r.commits())
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}

func TestNewProducerRejectsUnknownCodec(t *testing.T) {
	_, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli"))
	assert.ErrorContains(t, err, "brotli")
}
