package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// ErrNoChannel means the recipient has no contact the dispatcher can reach.
var ErrNoChannel = errors.New("notify: no delivery channel for recipient")

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Notification struct {
	To       Recipient `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Category string    `json:"category,omitempty"`
}

// Dispatcher picks SMS when the recipient has a phone and an SMS sender is
// configured, email otherwise.
type Dispatcher struct {
	sms    SMSSender
	email  EmailSender
	logger *logging.Logger
}

func NewDispatcher(sms SMSSender, email EmailSender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{sms: sms, email: email, logger: logger}
}

// Deliver sends n and reports the channel used.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) (Channel, error) {
	if strings.TrimSpace(n.Body) == "" {
		return "", errors.New("notify: body required")
	}
	phone := strings.TrimSpace(n.To.Phone)
	email := strings.TrimSpace(n.To.Email)

	switch {
	case phone != "" && d.sms != nil:
		if err := d.sms.SendSMS(ctx, phone, n.Body); err != nil {
			return ChannelSMS, fmt.Errorf("notify: deliver sms: %w", err)
		}
		return ChannelSMS, nil
	case email != "" && d.email != nil:
		subject := n.Subject
		if subject == "" {
			subject = "Recordatorio de su veterinaria"
		}
		err := d.email.Send(ctx, EmailMessage{
			To:       email,
			ToName:   n.To.Name,
			Subject:  subject,
			Body:     n.Body,
			Category: n.Category,
		})
		if err != nil {
			return ChannelEmail, fmt.Errorf("notify: deliver email: %w", err)
		}
		return ChannelEmail, nil
	}

	d.logger.Debug("notify: recipient unreachable", "name", n.To.Name)
	return "", ErrNoChannel
}
