package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Validator records ground truth for pending predictions
type Validator interface {
	ListPending(ctx context.Context) ([]*models.Prediction, error)
	Validate(ctx context.Context, id string, actualValue float64) error
}

// ValidatedPublisher announces successful validations; may be nil
type ValidatedPublisher interface {
	PublishPredictionValidated(ctx context.Context, pred *models.Prediction) error
}

// Consumer consumes market-close events and validates pending predictions
// whose horizon date matches the realized close
type Consumer struct {
	reader    *kafka.Reader
	store     Validator
	publisher ValidatedPublisher
	logger    zerolog.Logger
}

// NewConsumer creates a Kafka consumer for ground-truth events
func NewConsumer(brokers []string, topic, groupID string, store Validator, publisher ValidatedPublisher) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:    reader,
		store:     store,
		publisher: publisher,
		logger:    log.With().Str("component", "ground_truth_consumer").Logger(),
	}
}

// Start begins consuming messages until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("Starting ground-truth consumer")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Ground-truth consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil // normal shutdown
				}
				c.logger.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.logger.Error().Err(err).Msg("Error processing message")
				// Continue processing other messages
			}
		}
	}
}

// processMessage validates every pending prediction targeting the event date
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.GroundTruthEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal ground-truth event: %w", err)
	}

	pending, err := c.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending predictions: %w", err)
	}

	eventDate := event.Date.UTC().Truncate(24 * time.Hour)
	matched := 0
	for _, p := range pending {
		if p.Symbol != event.Symbol {
			continue
		}
		if !p.HorizonDate.UTC().Truncate(24 * time.Hour).Equal(eventDate) {
			continue
		}

		if err := c.store.Validate(ctx, p.ID, event.ActualValue); err != nil {
			if errors.Is(err, models.ErrInconsistentValidation) {
				c.logger.Error().Err(err).Str("id", p.ID).Msg("Conflicting ground truth, skipping")
				continue
			}
			return fmt.Errorf("failed to validate prediction %s: %w", p.ID, err)
		}
		matched++

		if c.publisher != nil {
			validated := *p
			actual := event.ActualValue
			validated.ActualValue = &actual
			validated.Status = models.StatusValidated
			if err := c.publisher.PublishPredictionValidated(ctx, &validated); err != nil {
				c.logger.Warn().Err(err).Str("id", p.ID).Msg("Failed to publish validation event")
			}
		}
	}

	if matched > 0 {
		c.logger.Info().
			Str("symbol", event.Symbol).
			Time("date", eventDate).
			Int("validated", matched).
			Msg("Ground truth applied to pending predictions")
	}
	return nil
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
