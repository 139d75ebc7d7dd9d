package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ridedispatch/internal/domain"
)

const (
	locationWriteTimeout = 2 * time.Second

	// locationBatchTimeout caps how long a ping waits for its batch to fill.
	// The writer is synchronous, so this is added to every location request.
	locationBatchTimeout = 5 * time.Millisecond
)

// messageWriter is the part of *kafka.Writer the stream needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LocationStream produces driver location pings to a Kafka topic, keyed
// by driver id so one driver's pings stay ordered within a partition.
type LocationStream struct {
	writer messageWriter
}

// NewLocationStream creates a producer for topic on brokers.
func NewLocationStream(brokers []string, topic string) *LocationStream {
	return &LocationStream{writer: newLocationWriter(brokers, topic)}
}

func newLocationWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: locationBatchTimeout,
	}
}

// PublishLocation implements service.LocationPublisher.
func (s *LocationStream) PublishLocation(ctx context.Context, event domain.DriverLocationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal location event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, locationWriteTimeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DriverID),
		Value: value,
		Time:  event.RecordedAt,
	}); err != nil {
		return fmt.Errorf("write location event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *LocationStream) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
