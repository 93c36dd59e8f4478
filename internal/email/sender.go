package email

import (
	"context"
	"errors"
	"net/mail"
)

// Sender is the interface that all delivery providers must implement.
type Sender interface {
	// Send delivers one message to one recipient.
	Send(ctx context.Context, msg Message) error
}

// Message represents an email message to be sent.
type Message struct {
	To       string // recipient email address
	FromName string // sender label
	Subject  string // email subject
	HTMLBody string // optional HTML alternative
	TextBody string // template text, sent verbatim
}

// ErrNoRecipient is returned when a message has no To address
var ErrNoRecipient = errors.New("email: message has no recipient")

// From formats the sender label and address as an RFC 5322 address,
// encoding non-ASCII labels.
func From(name, address string) string {
	if name == "" {
		return address
	}
	return (&mail.Address{Name: name, Address: address}).String()
}
