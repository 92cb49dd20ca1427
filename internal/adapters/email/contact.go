package email

import (
	"context"
	"errors"
	"log/slog"

	"glamour/internal/domain/contact"
)

// ErrNoInbox is returned when no venue inbox is configured.
var ErrNoInbox = errors.New("contact inbox not configured")

// ContactMailer forwards homepage enquiries to the venue inbox.
type ContactMailer struct {
	Sender Sender
	From   string
	Inbox  string
}

// Deliver validates m and emails it to the inbox, replying to the visitor.
// PRE: none; m is validated here
// POST: one message sent to Inbox with ReplyTo set to m.Email
func (c ContactMailer) Deliver(ctx context.Context, m contact.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if c.Inbox == "" {
		return ErrNoInbox
	}
	_, err := c.Sender.Send(ctx, Message{
		To:      []string{c.Inbox},
		From:    c.From,
		Subject: m.EmailSubject(),
		HTML:    m.EmailHTML(),
		ReplyTo: m.Email,
	})
	if err != nil {
		return err
	}
	slog.Info("contact_enquiry_sent", "subject", m.EmailSubject())
	return nil
}
