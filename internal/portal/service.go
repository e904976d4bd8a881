package portal

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

const clinicSenderName = "Clínica"

type ClientDirectory interface {
	Get(ctx context.Context, id string) (*registry.Client, error)
}

type InvoiceSource interface {
	ListInvoices(ctx context.Context) ([]*billing.Invoice, error)
}

type ReminderGenerator interface {
	GenerateReminderText(ctx context.Context, req gateway.ReminderRequest) (gateway.Text, error)
}

type Service struct {
	clients   ClientDirectory
	invoices  InvoiceSource
	messages  MessageStore
	reminders ReminderGenerator
	hub       *Hub
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(clients ClientDirectory, invoices InvoiceSource, messages MessageStore, reminders ReminderGenerator, hub *Hub, logger *logging.Logger) *Service {
	if clients == nil || invoices == nil || messages == nil || reminders == nil {
		panic("portal: clients, invoices, messages and reminders are required")
	}
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		clients:   clients,
		invoices:  invoices,
		messages:  messages,
		reminders: reminders,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) Hub() *Hub { return s.hub }

// Summary returns the client's pets, documents and payment totals.
func (s *Service) Summary(ctx context.Context, clientID string) (*Summary, error) {
	client, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.invoices.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(client, invoices), nil
}

// Post appends a message to the client's thread and pushes it to live
// connections. A blank sender name is filled from the client or the clinic.
func (s *Service) Post(ctx context.Context, clientID, senderName, text string, isAdmin bool) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, ErrMessageTooLong
	}
	client, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	senderName = strings.TrimSpace(senderName)
	if senderName == "" {
		senderName = client.FullName
		if isAdmin {
			senderName = clinicSenderName
		}
	}
	msg := &Message{
		ID:         uuid.NewString(),
		ClientID:   client.ID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  s.now().UTC(),
		IsAdmin:    isAdmin,
	}
	if err := s.messages.Append(ctx, *msg); err != nil {
		return nil, err
	}
	s.hub.Publish(client.ID, Event{Type: "message", Message: msg})
	return msg, nil
}

func (s *Service) Messages(ctx context.Context, clientID string, limit int64) ([]Message, error) {
	if _, err := s.clients.Get(ctx, clientID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListMessage
	}
	return s.messages.List(ctx, clientID, limit)
}

// Remind generates a short reminder for one of the client's pets, keeps it in
// the thread as a clinic message and pushes it to live connections.
func (s *Service) Remind(ctx context.Context, clientID, petName, reason string) (*Reminder, error) {
	petName = strings.TrimSpace(petName)
	reason = strings.TrimSpace(reason)
	if petName == "" || reason == "" {
		return nil, ErrReminderPet
	}
	client, err := s.clients.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	text, err := s.reminders.GenerateReminderText(ctx, gateway.ReminderRequest{PetName: petName, Reason: reason})
	if err != nil {
		return nil, err
	}
	r := &Reminder{
		ClientID:  client.ID,
		PetName:   petName,
		Reason:    reason,
		Text:      text.Value,
		Fallback:  text.Fallback,
		Timestamp: s.now().UTC(),
	}

	if err := s.messages.Append(ctx, Message{
		ID:         uuid.NewString(),
		ClientID:   client.ID,
		SenderName: clinicSenderName,
		Text:       r.Text,
		Timestamp:  r.Timestamp,
		IsAdmin:    true,
	}); err != nil {
		s.logger.Warn("portal: reminder not kept in thread", "client_id", client.ID, "error", err)
	}
	delivered := s.hub.Publish(client.ID, Event{Type: "reminder", Reminder: r})
	s.logger.Info("portal reminder sent", "client_id", client.ID, "pet", petName, "connections", delivered, "fallback", r.Fallback)
	return r, nil
}
