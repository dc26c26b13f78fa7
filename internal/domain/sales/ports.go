package sales

import (
	"context"
	"io"
	"time"

	"salesflow/internal/core/entity"
	"salesflow/internal/core/id"
	"salesflow/internal/domain/credit"
)

// Event types published after commit.
const (
	EventDocumentCreated   = "document.created"
	EventDocumentUpdated   = "document.updated"
	EventStatusChanged     = "status.changed"
	EventDocumentConverted = "document.converted"
)

// Event is a notification about a committed change. The customer is the recipient.
type Event struct {
	Type           string              `json:"type"`
	DocumentID     id.ID               `json:"documentId"`
	DocumentType   entity.DocumentType `json:"documentType"`
	Number         string              `json:"number"`
	CustomerID     id.ID               `json:"customerId"`
	Status         Status              `json:"status,omitempty"`
	PreviousStatus Status              `json:"previousStatus,omitempty"`
	SourceID       *id.ID              `json:"sourceId,omitempty"`
	Actor          string              `json:"actor,omitempty"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

// Notifier delivers events to customers. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// FileStore keeps proof images.
type FileStore interface {
	// Store saves r under a generated path derived from name and returns the path.
	Store(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Delete removes a stored file. Missing files are not an error.
	Delete(ctx context.Context, path string) error
}

// DocumentLocker serializes work on a document across processes.
type DocumentLocker interface {
	// Lock blocks other holders of key until unlock is called.
	// Returns DOCUMENT_LOCKED when the key is held elsewhere.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Auditor records header changes.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// CreditChecker evaluates the advisory credit limit of a customer.
type CreditChecker interface {
	Check(ctx context.Context, customerID id.ID) (*credit.Result, error)
}

// Metrics receives business counters.
type Metrics interface {
	DocumentCreated(docType entity.DocumentType)
	StatusChanged(from, to Status, inventoryUpdated bool)
	DocumentConverted(sourceType entity.DocumentType)
	NotificationFailed(eventType string)
	CreditLimitExceeded()
}

// ProofImage is an uploaded file attached to a status change.
type ProofImage struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) error { return nil }

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type nopAuditor struct{}

func (nopAuditor) LogChange(context.Context, string, id.ID, string, map[string]any) error {
	return nil
}

type nopMetrics struct{}

func (nopMetrics) DocumentCreated(entity.DocumentType) {}
func (nopMetrics) StatusChanged(Status, Status, bool) {}
func (nopMetrics) DocumentConverted(entity.DocumentType) {}
func (nopMetrics) NotificationFailed(string) {}
func (nopMetrics) CreditLimitExceeded() {}

// Option configures optional collaborators of the Service.
type Option func(*Service)

// WithNotifier sets the post-commit notifier.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithFileStore sets where proof images go. Without one, uploads are rejected.
func WithFileStore(f FileStore) Option { return func(s *Service) { s.files = f } }

// WithLocker sets the cross-process document lock.
func WithLocker(l DocumentLocker) Option { return func(s *Service) { s.locker = l } }

// WithAuditor sets the audit trail writer.
func WithAuditor(a Auditor) Option { return func(s *Service) { s.auditor = a } }

// WithCreditChecker enables the advisory credit check for sales.
func WithCreditChecker(c CreditChecker) Option { return func(s *Service) { s.credit = c } }

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }
