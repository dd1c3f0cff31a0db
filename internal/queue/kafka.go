package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/segmentio/kafka-go"
)

// SnapshotEvent announces that a snapshot was written to the store. A reset
// event carries no snapshot and means every snapshot of the combination was
// removed.
type SnapshotEvent struct {
	RunID        string `json:"run_id"`
	SnapshotID   string `json:"snapshot_id,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
	VehicleType  string `json:"vehicle_type"`
	KPIType      string `json:"kpi_type"`
	FeatureCount int    `json:"feature_count"`
	Reset        bool   `json:"reset,omitempty"`
}

// Key partitions events by vehicle/kpi combination
func (e SnapshotEvent) Key() string {
	return e.VehicleType + "/" + e.KPIType
}

// DecodeSnapshotEvent parses an event payload
func DecodeSnapshotEvent(data []byte) (SnapshotEvent, error) {
	var e SnapshotEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return SnapshotEvent{}, fmt.Errorf("failed to decode snapshot event: %w", err)
	}
	if e.VehicleType == "" || e.KPIType == "" {
		return SnapshotEvent{}, fmt.Errorf("snapshot event without vehicle_type or kpi_type")
	}
	return e, nil
}

// Publisher sends snapshot events
type Publisher interface {
	PublishSnapshot(ctx context.Context, e SnapshotEvent) error
	Close() error
}

// Producer wraps a Kafka producer
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

// PublishSnapshot sends one event keyed by vehicle/kpi
func (p *Producer) PublishSnapshot(ctx context.Context, e SnapshotEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Discard drops events when no brokers are configured
type Discard struct{}

func (Discard) PublishSnapshot(context.Context, SnapshotEvent) error { return nil }
func (Discard) Close() error { return nil }

// NewPublisher returns a Kafka producer, or Discard when brokers is empty
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Discard{}
	}
	return NewProducer(brokers, topic)
}

// Consumer wraps a Kafka consumer
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       1e6,
			CommitInterval: 0,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Consume reads messages until ctx is cancelled, handing each decoded event
// to handle. Offsets are committed after handle returns, also for payloads
// that fail to decode so they are not redelivered.
func (c *Consumer) Consume(ctx context.Context, handle func(context.Context, SnapshotEvent) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		if e, err := DecodeSnapshotEvent(msg.Value); err != nil {
			log.Printf("Failed to decode message at offset %d: %v", msg.Offset, err)
		} else if err := handle(ctx, e); err != nil {
			log.Printf("Failed to handle snapshot event %s %s: %v", e.Key(), e.Timestamp, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("Failed to commit offset: %v", err)
		}
	}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
