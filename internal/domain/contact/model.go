package contact

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"glamour/internal/domain/validation"
)

// MaxMessageLen bounds the message body accepted from the homepage form.
const MaxMessageLen = 4000

var (
	ErrFieldsRequired = errors.New("Name, email and message are required")
	ErrInvalidEmail   = errors.New("Please enter a valid email address")
	ErrTooLong        = errors.New("Message is too long")
)

// Message is a homepage contact form submission.
type Message struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Subject string `json:"subject"`
	Body    string `json:"message" validate:"required,max=4000"`
}

// Validate checks presence, email format and length.
func (m Message) Validate() error {
	p, err := validation.Check(m)
	if err != nil {
		return err
	}
	if len(p.Missing) > 0 {
		return ErrFieldsRequired
	}
	for _, f := range p.Invalid {
		if f == "email" {
			return ErrInvalidEmail
		}
		return ErrTooLong
	}
	return nil
}

// EmailSubject is the subject line of the venue notification.
func (m Message) EmailSubject() string {
	if s := strings.TrimSpace(m.Subject); s != "" {
		return "Website enquiry: " + s
	}
	return "Website enquiry from " + m.Name
}

// EmailHTML renders the notification body with all user text escaped.
func (m Message) EmailHTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p><strong>From:</strong> %s &lt;%s&gt;</p>", html.EscapeString(m.Name), html.EscapeString(m.Email))
	if m.Phone != "" {
		fmt.Fprintf(&b, "<p><strong>Phone:</strong> %s</p>", html.EscapeString(m.Phone))
	}
	body := html.EscapeString(m.Body)
	body = strings.ReplaceAll(body, "\n", "<br>")
	fmt.Fprintf(&b, "<p>%s</p>", body)
	return b.String()
}
