package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/IBM/sarama"
)

type saramaProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewSaramaProducer создает синхронный продюсер на IBM/sarama
func NewSaramaProducer(brokers []string, topic string, log *logger.Logger) (Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig(NewConfig(brokers)))
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create sarama producer: %w", err)
	}
	log.Infow("Sarama producer initialized", "brokers", brokers, "topic", topic)
	return NewSaramaProducerFrom(producer, topic, log), nil
}

// NewSaramaProducerFrom оборачивает готовый sarama.SyncProducer
func NewSaramaProducerFrom(producer sarama.SyncProducer, topic string, log *logger.Logger) Publisher {
	return &saramaProducer{producer: producer, topic: topic, log: log}
}

func (p *saramaProducer) PublishEntitlementChanged(ctx context.Context, msg EntitlementChanged) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}

	messageValue, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.AccountID),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(msg.Transition),
			},
		},
		Timestamp: msg.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish entitlement event: %w", err)
	}

	p.log.Infow("Published entitlement change", "topic", p.topic, "partition", partition, "offset", offset, "accountID", msg.AccountID)
	return nil
}

// Close закрывает продюсер
func (p *saramaProducer) Close() error {
	return p.producer.Close()
}
