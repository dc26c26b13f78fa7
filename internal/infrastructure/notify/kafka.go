// Package notify delivers sales events to customers over a message broker.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"salesflow/internal/domain/sales"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events keyed by customer so that one customer's
// events stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier creates a notifier writing to topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}}
}

// Notify implements sales.Notifier.
func (n *KafkaNotifier) Notify(ctx context.Context, event sales.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CustomerID.String()),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "document_type", Value: []byte(event.DocumentType)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to kafka: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

var _ sales.Notifier = (*KafkaNotifier)(nil)
