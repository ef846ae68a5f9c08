package repository

import (
	"context"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
)

// KafkaEventPublisher implements EventPublisher for Kafka. Events are keyed by
// symbol so one symbol's events stay ordered within a partition.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

var _ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) PublishForecast(ctx context.Context, ev models.ForecastEvent) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte(ev.Symbol),
		Value:   ev,
		Headers: map[string]string{"trace_id": ev.RunID, "strategy": string(ev.Strategy)},
	}})
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}

// NoopEventPublisher drops events. Used when Kafka is disabled.
type NoopEventPublisher struct{}

var _ domrepo.EventPublisher = NoopEventPublisher{}

func (NoopEventPublisher) PublishForecast(context.Context, models.ForecastEvent) error { return nil }
func (NoopEventPublisher) Close() error                                                { return nil }
