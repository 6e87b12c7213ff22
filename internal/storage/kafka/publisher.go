// Package kafka publishes audit events to a Kafka topic.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/tikis23/psp-2025/internal/domain/audit"
)

// writer is the part of *kafka.Writer the publisher needs.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements audit.Publisher. Events are keyed by order id so
// that one order's history stays in a single partition.
type Publisher struct {
	w       writer
	timeout time.Duration
}

var _ audit.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher writing to topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		timeout: 5 * time.Second,
	}
}

// Publish implements audit.Publisher.
func (p *Publisher) Publish(ctx context.Context, e audit.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var enc jx.Encoder
	e.Encode(&enc)

	key := e.OrderID
	if key == "" {
		key = e.MerchantID.String()
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: enc.Bytes(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if e.RequestID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "request_id", Value: []byte(e.RequestID)})
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s event", e.Type)
	}
	return nil
}

// Close flushes pending writes.
func (p *Publisher) Close() error {
	return p.w.Close()
}
