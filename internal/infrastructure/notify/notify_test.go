package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/domain/sales"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakePublisher struct {
	msgs []*pubsub.Message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg *pubsub.Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.msgs = append(p.msgs, msg)
	return "1", nil
}

func testEvent() sales.Event {
	return sales.Event{
		Type:           sales.EventStatusChanged,
		DocumentID:     id.New(),
		DocumentType:   entity.DocumentTypeSale,
		Number:         "SI-00001",
		CustomerID:     id.New(),
		Status:         sales.StatusCompleted,
		PreviousStatus: sales.StatusProcessing,
		OccurredAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestKafkaNotifier_Notify(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{writer: w}
	ev := testEvent()

	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, ev.CustomerID.String(), string(msg.Key))
	assert.Equal(t, ev.OccurredAt, msg.Time)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, sales.EventStatusChanged, string(msg.Headers[0].Value))

	var decoded sales.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev.DocumentID, decoded.DocumentID)
	assert.Equal(t, sales.StatusCompleted, decoded.Status)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := &KafkaNotifier{writer: &fakeWriter{err: errors.New("broker down")}}

	err := n.Notify(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestPubSubNotifier_Notify(t *testing.T) {
	p := &fakePublisher{}
	n := &PubSubNotifier{pub: p}
	ev := testEvent()

	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, p.msgs, 1)
	assert.Equal(t, ev.CustomerID.String(), p.msgs[0].OrderingKey)
	assert.Equal(t, "sale", p.msgs[0].Attributes["document_type"])
	assert.Equal(t, ev.DocumentID.String(), p.msgs[0].Attributes["document_id"])

	p.err = errors.New("quota")
	assert.Error(t, n.Notify(context.Background(), ev))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), testEvent()))
}
