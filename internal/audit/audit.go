// Package audit keeps an append-only trail of fiscal document events:
// authority decisions, credit notes, payments and receiver messages.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// EventType names what happened to a document.
type EventType string

const (
	EventDocumentAccepted        EventType = "document.accepted"
	EventDocumentRejected        EventType = "document.rejected"
	EventCreditNoteIssued        EventType = "document.credit_note_issued"
	EventPaymentRegistered       EventType = "document.payment_registered"
	EventReceiverMessageSent     EventType = "expense.receiver_message_sent"
	EventReceiverMessageRejected EventType = "expense.receiver_message_rejected"
)

// ErrInvalidFilter is returned for malformed query parameters.
var ErrInvalidFilter = errors.New("audit: invalid filter")

// Event is one immutable audit record.
type Event struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	DocumentType string          `json:"document_type"`
	DocumentID   string          `json:"document_id,omitempty"`
	Consecutive  string          `json:"consecutive,omitempty"`
	Message      string          `json:"message,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Details carries event-specific fields. Empty fields are omitted.
type Details struct {
	Total         string `json:"total,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	ReasonCode    string `json:"reason_code,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Fallback      bool   `json:"fallback,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// Filter selects events. Zero values match everything.
type Filter struct {
	Type       EventType
	DocumentID string
	From       time.Time
	To         time.Time
	Limit      int
}

// Store persists events newest-first on read.
type Store interface {
	Append(ctx context.Context, e Event) error
	Query(ctx context.Context, f Filter) ([]Event, error)
}

// Service records and queries events.
type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("audit: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Record stores e, filling the ID and timestamp. A failed write is logged and
// swallowed: the document it describes has already been committed.
func (s *Service) Record(ctx context.Context, e Event, details *Details) {
	if s == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err == nil {
			e.Details = raw
		}
	}
	if err := s.store.Append(ctx, e); err != nil {
		s.logger.Error("failed to record audit event", "type", e.Type, "document_id", e.DocumentID, "error", err)
	}
}

// Events returns the events matching f, newest first.
func (s *Service) Events(ctx context.Context, f Filter) ([]Event, error) {
	if f.Limit < 0 || (!f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From)) {
		return nil, ErrInvalidFilter
	}
	if f.Limit == 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.Query(ctx, f)
}
