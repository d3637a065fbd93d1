package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	sp := mocks.NewSyncProducer(t, nil)
	return &Producer{producer: sp, topic: "deal-events", logger: zap.NewNop()}, sp
}

func headerValue(msg *sarama.ProducerMessage, key string) (string, bool) {
	for _, h := range msg.Headers {
		if string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestSendRawUsesDefaultTopicAndHeaders(t *testing.T) {
	p, sp := newTestProducer(t)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "deal-events" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "deal-1" {
			return fmt.Errorf("unexpected key %q", key)
		}
		value, err := msg.Value.Encode()
		if err != nil || string(value) != `{"op":"update"}` {
			return fmt.Errorf("unexpected value %q", value)
		}
		if v, ok := headerValue(msg, "event_type"); !ok || v != "deal.updated" {
			return errors.New("missing event_type header")
		}
		if _, ok := headerValue(msg, "timestamp"); !ok {
			return errors.New("missing timestamp header")
		}
		return nil
	})

	err := p.SendRaw(context.Background(), "", "deal-1", []byte(`{"op":"update"}`),
		map[string]string{"event_type": "deal.updated"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestSendRawOverridesTopic(t *testing.T) {
	p, sp := newTestProducer(t)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "deal-events-dlq" {
			return fmt.Errorf("unexpected topic %q", msg.Topic)
		}
		return nil
	})

	require.NoError(t, p.SendRaw(context.Background(), "deal-events-dlq", "deal-1", []byte("x"), nil))
	require.NoError(t, p.Close())
}

func TestSendRawSkipsCanceledContext(t *testing.T) {
	p, _ := newTestProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// no expectation is set, so reaching the mock producer would fail the test
	err := p.SendRaw(ctx, "", "deal-1", []byte("x"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NoError(t, p.Close())
}

func TestSendRawWrapsBrokerErrors(t *testing.T) {
	p, sp := newTestProducer(t)
	sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	err := p.SendRaw(context.Background(), "", "deal-1", []byte("x"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	require.NoError(t, p.Close())
}
