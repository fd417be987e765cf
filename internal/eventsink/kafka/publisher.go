// Package kafka publishes alert events to a Kafka topic for downstream
// consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/buyalert/internal/cache/redis"
	"github.com/alanyoungcy/buyalert/internal/domain"
)

// Publisher implements domain.AlertSink with a kafka.Writer. Messages are
// keyed by exchange so one venue's alerts stay ordered within a partition.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Name returns the sink identifier.
func (p *Publisher) Name() string { return "kafka" }

// PublishAlert writes one alert event.
func (p *Publisher) PublishAlert(ctx context.Context, a domain.Alert) error {
	msg, err := message(a)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write alert %s: %w", a.ID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func message(a domain.Alert) (kafka.Message, error) {
	payload, err := json.Marshal(redis.NewAlertEvent(a))
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal alert %s: %w", a.ID, err)
	}
	return kafka.Message{
		Key:   []byte(a.Exchange),
		Value: payload,
		Time:  a.Timestamp,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(a.ID)},
			{Key: "pair", Value: []byte(a.Pair)},
		},
	}, nil
}

var _ domain.AlertSink = (*Publisher)(nil)
