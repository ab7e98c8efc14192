package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-ingest-service/internal/config"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher produces stage trigger commands to the trigger topic.
type Publisher struct {
	writer *kafkago.Writer
	source string
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured trigger topic.
// source is recorded in a header so consumers can tell emitters apart.
func NewPublisher(cfg *config.Config, source string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTriggerTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, source: source, logger: logger}
}

// Emit publishes cmd. Triggers for the same stage share a key and so a
// partition, which keeps them ordered.
func (p *Publisher) Emit(ctx context.Context, cmd string) error {
	msg := triggerMessage(cmd, p.source, domain.Now())
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.logger.Debug("trigger published", "command", cmd, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// triggerMessage builds the Kafka message for a trigger command.
func triggerMessage(cmd, source string, now time.Time) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(cmd),
		Value: []byte(cmd),
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(source)},
			{Key: "emitted_at", Value: []byte(now.Format(time.RFC3339))},
		},
	}
}
