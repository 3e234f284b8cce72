package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trogers1052/forecast-monitor/internal/models"
)

// Producer publishes monitoring events to Kafka
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a new Kafka producer for monitoring events
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishPredictionRecorded publishes a prediction recorded event
func (p *Producer) PublishPredictionRecorded(ctx context.Context, pred *models.Prediction) error {
	event := models.MonitorEvent{
		EventType:  models.EventPredictionRecorded,
		Symbol:     pred.Symbol,
		Prediction: pred,
		Timestamp:  time.Now(),
	}
	return p.publish(ctx, pred.Symbol, event)
}

// PublishPredictionValidated publishes a prediction validated event
func (p *Producer) PublishPredictionValidated(ctx context.Context, pred *models.Prediction) error {
	event := models.MonitorEvent{
		EventType:  models.EventPredictionValidated,
		Symbol:     pred.Symbol,
		Prediction: pred,
		Timestamp:  time.Now(),
	}
	return p.publish(ctx, pred.Symbol, event)
}

// PublishDriftDetected publishes a drift detected event
func (p *Producer) PublishDriftDetected(ctx context.Context, report *models.DriftReport) error {
	event := models.MonitorEvent{
		EventType: models.EventDriftDetected,
		Symbol:    report.Symbol,
		Drift:     report,
		Timestamp: time.Now(),
	}
	return p.publish(ctx, report.Symbol, event)
}

func (p *Producer) publish(ctx context.Context, key string, event models.MonitorEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
