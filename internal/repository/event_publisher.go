package repository

import (
	"context"

	"NKDash/internal/domain/models"
	drepo "NKDash/internal/domain/repository"
	pkgkafka "NKDash/pkg/kafka"
)

// KafkaEventPublisher forwards connection lifecycle events to a topic.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	key      []byte
}

// NewKafkaEventPublisher creates a publisher keyed by source so one feed stays ordered.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic, source string) drepo.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic, key: []byte(source)}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.ConnectionEvent) error {
	return p.producer.Publish(ctx, p.topic, p.key, ev)
}

func (p *KafkaEventPublisher) Close() error { return p.producer.Close() }
