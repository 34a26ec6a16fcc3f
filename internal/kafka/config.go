package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/IBM/sarama"
)

// Драйверы публикации
const (
	DriverKafkaGo = "kafka-go"
	DriverSarama  = "sarama"
)

// Config конфигурация для Kafka
type Config struct {
	Brokers  []string
	Producer ProducerConfig
}

// ProducerConfig конфигурация для продюсера
type ProducerConfig struct {
	MaxMessageBytes int
	Compression     sarama.CompressionCodec
	RequiredAcks    sarama.RequiredAcks
	Timeout         time.Duration
	RetryMax        int
}

// NewConfig создает новую конфигурацию Kafka
func NewConfig(brokers []string) *Config {
	return &Config{
		Brokers: brokers,
		Producer: ProducerConfig{
			MaxMessageBytes: 1000000,
			Compression:     sarama.CompressionSnappy,
			RequiredAcks:    sarama.WaitForAll,
			Timeout:         10 * time.Second,
			RetryMax:        3,
		},
	}
}

// NewSaramaConfig создает новую конфигурацию Sarama
func NewSaramaConfig(cfg *Config) *sarama.Config {
	saramaConfig := sarama.NewConfig()

	// Версия Kafka
	saramaConfig.Version = sarama.V3_3_0_0

	// Настройки продюсера
	saramaConfig.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	saramaConfig.Producer.Compression = cfg.Producer.Compression
	saramaConfig.Producer.RequiredAcks = cfg.Producer.RequiredAcks
	saramaConfig.Producer.Timeout = cfg.Producer.Timeout
	saramaConfig.Producer.Retry.Max = cfg.Producer.RetryMax
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	return saramaConfig
}

// NewPublisher выбирает реализацию по драйверу. Без брокеров возвращает NopPublisher.
func NewPublisher(driver string, brokers []string, topic string, log *logger.Logger) (Publisher, error) {
	if len(brokers) == 0 {
		log.Infow("Kafka is not configured, entitlement changes will not be published")
		return NopPublisher{}, nil
	}
	if topic == "" {
		topic = TopicEntitlementChanged
	}

	switch strings.ToLower(driver) {
	case "", DriverKafkaGo:
		return NewKafkaProducer(brokers, topic, log)
	case DriverSarama:
		return NewSaramaProducer(brokers, topic, log)
	default:
		return nil, fmt.Errorf("kafka: unknown driver %q", driver)
	}
}
