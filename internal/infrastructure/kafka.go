package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"furniture-store/internal/model"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaEventPublisher writes domain events to one topic, keyed by order id so
// every event of an order lands on the same partition.
type KafkaEventPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafkaEventPublisher creates a synchronous writer for topic. A single
// Publish, retries included, gives up after timeout.
func NewKafkaEventPublisher(brokers []string, topic string, timeout time.Duration, log zerolog.Logger) *KafkaEventPublisher {
	kafkaLog := log.With().Str("component", "kafka").Logger()
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		WriteTimeout:           timeout,
		AllowAutoTopicCreation: true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			kafkaLog.Error().Msgf(msg, args...)
		}),
	}
	return &KafkaEventPublisher{writer: writer, timeout: timeout}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, event model.DomainEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.writer.Close()
}
