package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CDeX-Labs/CDeX-Live-Service/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Consumer struct {
	readers  []*kafka.Reader
	handlers map[string]EventHandler
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	retry    time.Duration
}

type EventHandler func(ctx context.Context, message kafka.Message) error

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
}

func NewConsumer(cfg ConsumerConfig, m *metrics.Metrics, logger zerolog.Logger) *Consumer {
	readers := make([]*kafka.Reader, 0, len(cfg.Topics))
	for _, topic := range cfg.Topics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: 1 * time.Second,
			StartOffset:    kafka.LastOffset,
		})
		readers = append(readers, reader)
	}

	return &Consumer{
		readers:  readers,
		handlers: make(map[string]EventHandler),
		metrics:  m,
		logger:   logger.With().Str("component", "kafka").Logger(),
		retry:    time.Second,
	}
}

// RegisterHandler must be called before Run.
func (c *Consumer) RegisterHandler(topic string, handler EventHandler) {
	c.handlers[topic] = handler
}

// Run consumes every topic on its own goroutine and blocks until ctx is
// cancelled. Messages of one topic are handled one at a time.
func (c *Consumer) Run(ctx context.Context) error {
	done := make(chan struct{}, len(c.readers))
	for _, reader := range c.readers {
		go func(r *kafka.Reader) {
			c.consumeFromReader(ctx, r)
			done <- struct{}{}
		}(reader)
	}
	c.logger.Info().Int("topics", len(c.readers)).Msg("Kafka consumer started")

	for range c.readers {
		<-done
	}
	return c.close()
}

func (c *Consumer) consumeFromReader(ctx context.Context, reader *kafka.Reader) {
	topic := reader.Config().Topic
	c.logger.Info().Str("topic", topic).Msg("Starting consumer for topic")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to fetch message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retry):
			}
			continue
		}

		c.logger.Debug().
			Str("topic", topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Received message")

		c.dispatch(ctx, msg)

		if err := reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to commit message")
		}
	}
}

// dispatch runs the topic handler. A failing message is logged and skipped so
// one bad event never blocks the topic.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		c.metrics.IncKafkaMessage(msg.Topic, "unhandled")
		c.logger.Warn().Str("topic", msg.Topic).Msg("No handler registered for topic")
		return
	}

	if err := handler(ctx, msg); err != nil {
		c.metrics.IncKafkaMessage(msg.Topic, "error")
		c.logger.Error().Err(err).Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Handler failed")
		return
	}
	c.metrics.IncKafkaMessage(msg.Topic, "ok")
}

func (c *Consumer) close() error {
	var errs []error
	for _, reader := range c.readers {
		if err := reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader %s: %w", reader.Config().Topic, err))
		}
	}

	c.logger.Info().Msg("Kafka consumer stopped")
	return errors.Join(errs...)
}
