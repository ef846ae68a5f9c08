package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Message is one outgoing record. Value is sent as-is when it is a string or
// []byte and JSON-encoded otherwise.
type Message struct {
	Key     []byte
	Value   interface{}
	Headers map[string]string
}

type Producer struct {
	writer Writer
	codec  string
	now    func() time.Time
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := ProducerConfig{
		RequiredAcks: -1,
		MaxAttempts:  3,
		Codec:        "gzip",
		BatchSize:    100,
		BatchBytes:   1 << 20,
		Linger:       time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	codec, err := codecFor(cfg.Codec)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:            cfg.MaxAttempts,
		Compression:            codec,
		BatchSize:              cfg.BatchSize,
		BatchBytes:             int64(cfg.BatchBytes),
		BatchTimeout:           cfg.Linger,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.ReadTimeout,
		Async:                  cfg.Async,
		AllowAutoTopicCreation: cfg.AutoCreate,
	}
	return NewProducerWithWriter(w, cfg.Codec), nil
}

// NewProducerWithWriter wraps an existing writer; codec only labels metrics.
func NewProducerWithWriter(w Writer, codec string) *Producer {
	registerProducerMetrics()
	return &Producer{writer: w, codec: codec, now: time.Now}
}

func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishMessage sends an unkeyed value. The log collector publishes through
// it.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) PublishBatch(ctx context.Context, topic string, batch []Message) error {
	if len(batch) == 0 {
		return nil
	}
	start := p.now()
	out := make([]kafka.Message, len(batch))
	var size int64
	for i, m := range batch {
		v, err := marshalValue(m.Value)
		if err != nil {
			return fmt.Errorf("kafka publish %s: message %d: %w", topic, i, err)
		}
		out[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: start}
		for k, hv := range m.Headers {
			out[i].Headers = append(out[i].Headers, kafka.Header{Key: k, Value: []byte(hv)})
		}
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, out...)
	producerStats.observe(topic, p.codec, len(batch), size, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func marshalValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	}
	return json.Marshal(v)
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	producerStats     producerMetrics
	producerStatsOnce sync.Once
)

func registerProducerMetrics() {
	producerStatsOnce.Do(func() {
		producerStats = producerMetrics{
			messages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fincast_kafka_produced_messages_total",
				Help: "Messages handed to the Kafka writer, by outcome.",
			}, []string{"topic", "codec", "result"}),
			bytes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fincast_kafka_produced_bytes_total",
				Help: "Uncompressed payload bytes handed to the Kafka writer.",
			}, []string{"topic"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fincast_kafka_publish_seconds",
				Help:    "Time spent in WriteMessages per batch.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			}, []string{"topic"}),
		}
	})
}

func (m producerMetrics) observe(topic, codec string, n int, size int64, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, codec, result).Add(float64(n))
	m.bytes.WithLabelValues(topic).Add(float64(size))
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
