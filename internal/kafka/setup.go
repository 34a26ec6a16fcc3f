package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	kafkaGo "github.com/segmentio/kafka-go"
)

// EnsureKafkaTopics проверяет и создает топик изменений доступа.
// Подключение к брокеру повторяется с экспоненциальной задержкой.
func EnsureKafkaTopics(ctx context.Context, brokers []string, topic string, log *logger.Logger) error {
	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	if _, _, err := net.SplitHostPort(broker); err != nil {
		log.Errorw("Invalid Kafka broker address format", "broker", broker, "error", err)
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}

	var conn *kafkaGo.Conn
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	dial := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		var err error
		conn, err = kafkaGo.DialContext(dialCtx, "tcp", broker)
		if err != nil {
			log.Warnw("Kafka broker is not ready yet", "broker", broker, "error", err)
		}
		return err
	}
	if err := backoff.Retry(dial, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(topic)
	if err == nil && len(partitions) > 0 {
		log.Debugw("Topic already exists", "topic", topic, "partitions", len(partitions))
		return nil
	}

	// Топики создаются только через контроллер кластера
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka controller lookup failed: %w", err)
	}
	ctrlConn, err := kafkaGo.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka controller connection failed: %w", err)
	}
	defer ctrlConn.Close()

	err = ctrlConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		log.Errorw("Failed to create topic", "error", err, "topic", topic)
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Kafka topic is ready", "topic", topic)
	return nil
}
