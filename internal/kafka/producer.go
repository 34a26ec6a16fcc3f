package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// messageWriter часть kafka.Writer, которой пользуется продюсер
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer реализует Publisher, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, topic string, log *logger.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}

	// Ключ сообщения account_id, Hash сохраняет порядок событий одного аккаунта
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "topic", topic)
	return newKafkaProducer(writer, topic, log), nil
}

func newKafkaProducer(writer messageWriter, topic string, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{writer: writer, topic: topic, log: log}
}

// PublishEntitlementChanged отправляет сообщение в топик
func (k *kafkaProducer) PublishEntitlementChanged(ctx context.Context, msg EntitlementChanged) error {
	messageValue, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: k.topic,
		Key:   []byte(msg.AccountID),
		Value: messageValue,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.Transition)},
		},
		Time: msg.OccurredAt,
	}

	if err := k.writer.WriteMessages(ctx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", k.topic, "accountID", msg.AccountID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", k.topic, "accountID", msg.AccountID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Published entitlement change", "topic", k.topic, "accountID", msg.AccountID, "state", msg.State)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	return nil
}
