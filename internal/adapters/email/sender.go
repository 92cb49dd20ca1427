package email

import (
	"context"
	"time"
)

// Message is one outgoing email.
type Message struct {
	To      []string
	From    string // falls back to the sender's default when empty
	Subject string
	HTML    string
	ReplyTo string
}

// Receipt is the provider's acknowledgement of a send.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email through an external provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
