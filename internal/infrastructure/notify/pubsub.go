package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"salesflow/internal/domain/sales"
)

type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type topicPublisher struct {
	topic *pubsub.Topic
}

func (p topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return p.topic.Publish(ctx, msg).Get(ctx)
}

// PubSubNotifier publishes events to a Google Pub/Sub topic with the
// customer as ordering key.
type PubSubNotifier struct {
	client *pubsub.Client
	pub    publisher
}

// NewPubSubNotifier connects to project and prepares topic. Empty
// credentialsJSON uses application default credentials.
func NewPubSubNotifier(ctx context.Context, projectID, topic, credentialsJSON string) (*PubSubNotifier, error) {
	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	t := client.Topic(topic)
	t.EnableMessageOrdering = true
	return &PubSubNotifier{client: client, pub: topicPublisher{topic: t}}, nil
}

// Notify implements sales.Notifier. It blocks until the server acknowledges.
func (n *PubSubNotifier) Notify(ctx context.Context, event sales.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{
		Data:        body,
		OrderingKey: event.CustomerID.String(),
		Attributes: map[string]string{
			"event_type":    event.Type,
			"document_type": string(event.DocumentType),
			"document_id":   event.DocumentID.String(),
		},
	}
	if _, err := n.pub.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	return nil
}

// Close stops the topic and the client.
func (n *PubSubNotifier) Close() error {
	if tp, ok := n.pub.(topicPublisher); ok {
		tp.topic.Stop()
	}
	if n.client != nil {
		return n.client.Close()
	}
	return nil
}

var _ sales.Notifier = (*PubSubNotifier)(nil)
