// Package portal is the client-facing side of the clinic: an account
// summary, a message thread with the clinic and live reminders.
package portal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/registry"
)

const maxMessageRunes = 2000

var (
	ErrEmptyMessage   = errors.New("portal: message text is required")
	ErrMessageTooLong = errors.New("portal: message exceeds 2000 characters")
	ErrReminderPet    = errors.New("portal: pet_name and reason are required")
	ErrClientRequired = errors.New("portal: client id is required")
)

// Message is one entry in a client's thread with the clinic.
type Message struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsAdmin    bool      `json:"is_admin"`
}

// Reminder is a generated notice pushed to a connected client.
type Reminder struct {
	ClientID  string    `json:"client_id"`
	PetName   string    `json:"pet_name"`
	Reason    string    `json:"reason"`
	Text      string    `json:"text"`
	Fallback  bool      `json:"fallback"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the client's account overview.
type Summary struct {
	Client       *registry.Client   `json:"client"`
	Invoices     []*billing.Invoice `json:"invoices"`
	PaidTotal    decimal.Decimal    `json:"paid_total"`
	PendingTotal decimal.Decimal    `json:"pending_total"`
}

// Event is what websocket subscribers receive.
type Event struct {
	Type     string    `json:"type"` // history, message, reminder, pong, error
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Reminder *Reminder `json:"reminder,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// summarize totals a client's documents. Credit notes and voided invoices
// count toward neither total.
func summarize(client *registry.Client, all []*billing.Invoice) *Summary {
	s := &Summary{
		Client:       client,
		Invoices:     []*billing.Invoice{},
		PaidTotal:    decimal.Zero,
		PendingTotal: decimal.Zero,
	}
	for _, inv := range all {
		if inv.ClientID != client.ID {
			continue
		}
		s.Invoices = append(s.Invoices, inv)
		if inv.Type == billing.DocumentCreditNote || inv.Status == billing.StatusVoided {
			continue
		}
		if inv.Receivable() {
			s.PendingTotal = s.PendingTotal.Add(inv.Total)
		} else if inv.PaymentStatus == billing.PaymentPaid {
			s.PaidTotal = s.PaidTotal.Add(inv.Total)
		}
	}
	return s
}
