package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestOutboxPublisher_PublishWrapsPayload(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		raw, err := msg.Value.Encode()
		require.NoError(t, err)

		var got envelope
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, "outbox-1", got.ID)
		require.Equal(t, domain.EventTypeOrderCommitted, got.EventType)
		require.JSONEq(t, `{"order_id":"20181205105400000000007"}`, string(got.Payload))
		require.Len(t, msg.Headers, 3)
		return nil
	})

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), "")
	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "20181205105400000000007",
		EventType:     domain.EventTypeOrderCommitted,
		Payload:       []byte(`{"order_id":"20181205105400000000007"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(newProducer(mockProducer, nil), TopicOrderEvents)
	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-2", Payload: []byte(`{}`)})
	require.Error(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil, TopicOrderEvents)
	require.Error(t, publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}))
}
