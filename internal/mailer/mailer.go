// Package mailer delivers rendered email messages.
package mailer

import (
	"context"
	"errors"
)

// Message is a rendered email. At least one of HTML and Text is set.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

func (m Message) validate() error {
	if m.To == "" {
		return errors.New("mailer: recipient is required")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("mailer: message has no body")
	}
	return nil
}

// Sender delivers a message and returns the transport's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}
