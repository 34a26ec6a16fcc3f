package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testMessage() EntitlementChanged {
	return EntitlementChanged{
		EventID:        "evt_1",
		AccountID:      "42",
		SubscriptionID: "sub_1",
		Transition:     domain.EventKindCheckoutCompleted,
		State:          domain.StatePremiumActive,
		IsPremium:      true,
		UsageTier:      domain.UsageTierPremium,
		OccurredAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaProducer_Publish(t *testing.T) {
	writer := &fakeWriter{}
	producer := newKafkaProducer(writer, TopicEntitlementChanged, logger.NewNop())

	require.NoError(t, producer.PublishEntitlementChanged(context.Background(), testMessage()))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, TopicEntitlementChanged, msg.Topic)
	assert.Equal(t, []byte("42"), msg.Key)

	var decoded EntitlementChanged
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, testMessage(), decoded)

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestKafkaProducer_WriteTimeout(t *testing.T) {
	writer := &fakeWriter{err: context.DeadlineExceeded}
	producer := newKafkaProducer(writer, TopicEntitlementChanged, logger.NewNop())

	err := producer.PublishEntitlementChanged(context.Background(), testMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSaramaProducer_Publish(t *testing.T) {
	mock := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded EntitlementChanged
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded.AccountID != "42" {
			return errors.New("unexpected account")
		}
		return nil
	})

	producer := NewSaramaProducerFrom(mock, TopicEntitlementChanged, logger.NewNop())
	require.NoError(t, producer.PublishEntitlementChanged(context.Background(), testMessage()))
	require.NoError(t, producer.Close())
}

func TestSaramaProducer_Error(t *testing.T) {
	mock := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewSaramaProducerFrom(mock, TopicEntitlementChanged, logger.NewNop())
	err := producer.PublishEntitlementChanged(context.Background(), testMessage())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestNewPublisher(t *testing.T) {
	log := logger.NewNop()

	p, err := NewPublisher(DriverKafkaGo, nil, "", log)
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, p)

	p, err = NewPublisher(DriverKafkaGo, []string{"localhost:9092"}, "", log)
	require.NoError(t, err)
	assert.IsType(t, &kafkaProducer{}, p)
	assert.Equal(t, TopicEntitlementChanged, p.(*kafkaProducer).topic)
	require.NoError(t, p.Close())

	_, err = NewPublisher("rabbit", []string{"localhost:9092"}, "", log)
	assert.Error(t, err)
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := NewSaramaConfig(NewConfig([]string{"localhost:9092"}))
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	require.NoError(t, cfg.Validate())
}
