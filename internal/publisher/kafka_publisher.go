package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mint-gateway/internal/config"
	"github.com/akylbek/payment-system/mint-gateway/internal/telemetry"
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// keyed messages choose their own partition key.
type keyed interface {
	PartitionKey() string
}

// KafkaPublisher writes JSON messages with one writer per topic and retries failed
// writes with exponential backoff.
type KafkaPublisher struct {
	writers map[string]MessageWriter
	retry   config.RetryConfig
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewKafkaPublisher(brokers []string, topics []string, retry config.RetryConfig) *KafkaPublisher {
	writers := make(map[string]MessageWriter, len(topics))
	for _, t := range topics {
		writers[t] = &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    t,
			Balancer: &kafka.Hash{},
		}
	}
	return NewKafkaPublisherWithWriters(writers, retry)
}

// NewKafkaPublisherWithWriters builds a publisher over existing writers, filling in
// retry defaults of 5 attempts, 100ms base delay and 10s max delay.
func NewKafkaPublisherWithWriters(writers map[string]MessageWriter, retry config.RetryConfig) *KafkaPublisher {
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 5
	}
	if retry.BaseDelay == 0 {
		retry.BaseDelay = 100 * time.Millisecond
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 10 * time.Second
	}
	return &KafkaPublisher{writers: writers, retry: retry, sleep: sleepCtx}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic %s", topic)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msg := kafka.Message{Value: data}
	if k, ok := message.(keyed); ok {
		msg.Key = []byte(k.PartitionKey())
	}

	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		if lastErr = writer.WriteMessages(ctx, msg); lastErr == nil {
			return nil
		}
		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.backoff(attempt)
		telemetry.Logger.Warn("Kafka publish failed, retrying",
			zap.String("topic", topic),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	return fmt.Errorf("failed to publish to topic %s after %d attempts: %w",
		topic, p.retry.MaxAttempts, lastErr)
}

// backoff is 2^attempt × BaseDelay capped at MaxDelay, with ±15% jitter when enabled.
func (p *KafkaPublisher) backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * p.retry.BaseDelay
	if delay > p.retry.MaxDelay {
		delay = p.retry.MaxDelay
	}
	if p.retry.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}

func (p *KafkaPublisher) Close() error {
	var firstErr error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
