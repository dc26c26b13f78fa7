package notify

import (
	"context"

	"salesflow/internal/domain/sales"
	"salesflow/pkg/logger"
)

// LogNotifier writes events to the service log. Used in development.
type LogNotifier struct{}

// Notify implements sales.Notifier.
func (LogNotifier) Notify(ctx context.Context, event sales.Event) error {
	logger.Info(ctx, "customer notification",
		"event_type", event.Type,
		"document_id", event.DocumentID,
		"document_type", event.DocumentType,
		"number", event.Number,
		"customer_id", event.CustomerID,
		"status", event.Status,
	)
	return nil
}

var _ sales.Notifier = LogNotifier{}
