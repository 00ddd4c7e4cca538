package repository

import (
	"context"

	"FinFeat/internal/domain/models"
	"FinFeat/internal/domain/repository"
	pkgkafka "FinFeat/pkg/kafka"
)

// KafkaPublisher implements EventPublisher for Kafka, keyed by family.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishBuilt(ctx context.Context, ev models.DatasetBuilt) error {
	kind := "dataset.built"
	if ev.Finalized {
		kind = "model.finalized"
	}
	return p.producer.Publish(ctx, p.topic, []byte(ev.Family), ev, map[string]string{
		"event":  kind,
		"run_id": ev.RunID,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishBuilt(context.Context, models.DatasetBuilt) error { return nil }
func (NopPublisher) Close() error                                           { return nil }

var (
	_ repository.EventPublisher = (*KafkaPublisher)(nil)
	_ repository.EventPublisher = NopPublisher{}
)
