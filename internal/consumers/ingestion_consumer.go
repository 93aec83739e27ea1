package consumers

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"premiummeter/internal/adapters/kafka"
	"premiummeter/internal/domain/premium"
	"premiummeter/internal/metrics"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
	"premiummeter/pkg/reconnect"
)

// MessageReader is the part of kafka.Consumer the ingestion consumer needs
type MessageReader interface {
	ReadMessageWithShutdownCheck(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// CacheInvalidator drops cached query answers of a ticker
type CacheInvalidator interface {
	InvalidateTicker(ctx context.Context, ticker string) error
}

// IngestionConsumer invalidates the result cache whenever the collector reports new records
type IngestionConsumer struct {
	reader      MessageReader
	invalidator CacheInvalidator
	log         *logger.Logger

	// backoff throttles the loop while the broker is unreachable
	backoff *reconnect.Manager
}

// NewIngestionConsumer creates a new ingestion event consumer
func NewIngestionConsumer(reader MessageReader, invalidator CacheInvalidator, log *logger.Logger) *IngestionConsumer {
	return &IngestionConsumer{
		reader:      reader,
		invalidator: invalidator,
		log:         log.With("component", "ingestion_consumer"),
		backoff: reconnect.NewManager(reconnect.Config{
			MinBackoff: 500 * time.Millisecond,
			MaxBackoff: 30 * time.Second,
			Jitter:     0.2,
		}, log),
	}
}

// Start consumes events until ctx is cancelled
func (c *IngestionConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting ingestion consumer...")

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Errorw("Failed to close ingestion consumer", "error", err)
		} else {
			c.log.Info("Ingestion consumer closed")
		}
	}()

	for {
		msg, err := c.reader.ReadMessageWithShutdownCheck(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Ingestion consumer stopping (context cancelled)")
				return nil
			}
			c.log.Warnw("Failed to read ingestion event", "error", err)
			metrics.RecordKafkaMessage(kafka.TopicPremiumsIngested, err)
			if c.backoff.Wait(ctx) != nil {
				return nil
			}
			continue
		}
		c.backoff.RecordSuccess()

		// Finish the current message even if shutdown starts meanwhile
		processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = c.handleMessage(processCtx, msg)
		cancel()

		metrics.RecordKafkaMessage(msg.Topic, err)
		if err != nil {
			c.log.Warnw("Failed to handle ingestion event",
				"topic", msg.Topic,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *IngestionConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	var event premium.IngestionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "unmarshal ingestion event")
	}
	if err := event.Normalize(); err != nil {
		return errors.Wrap(err, "invalid ingestion event")
	}

	if err := c.invalidator.InvalidateTicker(ctx, event.Ticker); err != nil {
		return err
	}

	c.log.Debugw("Ingestion event processed",
		"ticker", event.Ticker,
		"option_type", event.OptionType,
		"collected_at", event.CollectedAt,
		"record_count", event.RecordCount,
	)
	return nil
}
