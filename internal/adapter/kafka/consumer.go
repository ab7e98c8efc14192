// Package kafka carries stage trigger commands over a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/weather-ingest-service/internal/config"
	"github.com/couchcryptid/weather-ingest-service/internal/domain"
	"github.com/couchcryptid/weather-ingest-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Dispatcher runs the stage named by a trigger command.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd string) (domain.StageReport, error)
}

// messageReader is the subset of *kafkago.Reader used by Consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads trigger commands and dispatches them one at a time.
type Consumer struct {
	reader     messageReader
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewConsumer creates a consumer-group reader on the trigger topic.
func NewConsumer(cfg *config.Config, d Dispatcher, logger *slog.Logger, metrics *observability.Metrics) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTriggerTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
		MaxWait:  time.Second,
	})
	return &Consumer{reader: r, dispatcher: d, logger: logger, metrics: metrics}
}

// Run consumes until ctx is cancelled. Offsets are committed after the
// dispatch returns, whatever its outcome: the stages are idempotent and a
// failed run is retried by the next trigger.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("trigger consumer started")
	backoff := initialBackoff

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("trigger consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("fetch trigger failed", "error", err)
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("commit offset failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) {
	cmd := strings.TrimSpace(string(msg.Value))
	logger := c.logger.With("command", cmd, "partition", msg.Partition, "offset", msg.Offset)

	report, err := c.dispatcher.Dispatch(ctx, cmd)
	if errors.Is(err, domain.ErrUnknownStage) {
		c.metrics.Triggers.WithLabelValues("kafka", "rejected").Inc()
		logger.Warn("unknown trigger command, skipping", "error", err)
		return
	}
	c.metrics.Triggers.WithLabelValues("kafka", "accepted").Inc()
	if err != nil || report.Failed() {
		logger.Warn("triggered stage failed", "stage", report.Stage, "error", errors.Join(err, report.Err))
		return
	}
	logger.Info("triggered stage completed", "stage", report.Stage, "duration", report.Duration)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
