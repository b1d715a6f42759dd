package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/mint-gateway/internal/config"
	"github.com/akylbek/payment-system/mint-gateway/internal/models"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func newTestPublisher(w MessageWriter, attempts int) *KafkaPublisher {
	p := NewKafkaPublisherWithWriters(map[string]MessageWriter{models.TopicQueueEvents: w},
		config.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestPublish_KeyedMessage(t *testing.T) {
	w := new(mockWriter)
	p := newTestPublisher(w, 3)
	ctx := context.Background()
	event := models.QueueEvent{Type: models.EventItemAdded, ItemID: "item-1", Identity: "0xabc", Status: models.StatusQueued}

	w.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
		var got models.QueueEvent
		_ = json.Unmarshal(msgs[0].Value, &got)
		return len(msgs) == 1 && string(msgs[0].Key) == "0xabc" && got.ItemID == "item-1"
	})).Return(nil).Once()

	require.NoError(t, p.Publish(ctx, models.TopicQueueEvents, event))
	w.AssertExpectations(t)
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	w := new(mockWriter)
	p := newTestPublisher(w, 3)
	ctx := context.Background()

	w.On("WriteMessages", ctx, mock.Anything).Return(errors.New("leader not available")).Twice()
	w.On("WriteMessages", ctx, mock.Anything).Return(nil).Once()

	assert.NoError(t, p.Publish(ctx, models.TopicQueueEvents, map[string]string{"k": "v"}))
	w.AssertNumberOfCalls(t, "WriteMessages", 3)
}

func TestPublish_GivesUpAfterMaxAttempts(t *testing.T) {
	w := new(mockWriter)
	p := newTestPublisher(w, 2)
	ctx := context.Background()

	w.On("WriteMessages", ctx, mock.Anything).Return(errors.New("broker down"))

	err := p.Publish(ctx, models.TopicQueueEvents, map[string]string{"k": "v"})
	assert.ErrorContains(t, err, "after 2 attempts")
	w.AssertNumberOfCalls(t, "WriteMessages", 2)
}

func TestPublish_UnknownTopic(t *testing.T) {
	p := newTestPublisher(new(mockWriter), 1)
	assert.Error(t, p.Publish(context.Background(), "nope", "x"))
}

func TestBackoff_Capped(t *testing.T) {
	p := NewKafkaPublisherWithWriters(nil, config.RetryConfig{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond})

	assert.Equal(t, 100*time.Millisecond, p.backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.backoff(4))
}
