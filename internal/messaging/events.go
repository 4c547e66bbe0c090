package messaging

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// EventPublisher is the best-effort notification bus MessagingCore emits to
// after a send or a friend-accept. Grounded on
// internal/handlers/chat_handler.go's ChatHandler.publishEvent, which writes
// a JSON-encoded event to a fixed Kafka topic and logs (never fails the
// caller) on write error.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
}

const eventsTopic = "chat-events"

// KafkaPublisher writes events to a Kafka topic through a *kafka.Writer.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

// NewKafkaPublisher wraps an already-configured writer.
func NewKafkaPublisher(writer *kafka.Writer, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger}
}

// Publish marshals payload and writes it synchronously through the writer,
// so the call lasts as long as the write; failures are logged, never
// returned, matching the original's "never surfaces to clients" rule for
// side-channel effects.
func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, payload interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": payload,
	})
	if err != nil {
		p.logger.WithError(err).WithField("event", eventType).Warn("failed to marshal event")
		return
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: eventsTopic, Value: data}); err != nil {
		p.logger.WithError(err).WithField("event", eventType).Warn("failed to publish event")
	}
}

// NopPublisher discards every event; used where no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) {}
