package email

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendSender implements Sender using the Resend API.
type ResendSender struct {
	client        *resend.Client
	senderAddress string
}

// NewResendSender creates a new ResendSender.
func NewResendSender(apiKey, senderAddress string) (*ResendSender, error) {
	if apiKey == "" || senderAddress == "" {
		return nil, fmt.Errorf("resend: api key and sender address are required")
	}

	return &ResendSender{
		client:        resend.NewClient(apiKey),
		senderAddress: senderAddress,
	}, nil
}

// Send implements Sender.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	req := &resend.SendEmailRequest{
		From:    From(msg.FromName, s.senderAddress),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.TextBody,
		Html:    msg.HTMLBody,
	}

	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}

	return nil
}
