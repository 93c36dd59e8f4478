package email

import (
	"context"

	"github.com/bulkmail/bulkmail/internal/logger"
)

// LogSender writes messages to the log instead of delivering them.
// It backs dry runs and the mocked provider.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.WithComponent("log_sender")}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.log.Info().
		Str("to", msg.To).
		Str("from_name", msg.FromName).
		Str("subject", msg.Subject).
		Int("text_bytes", len(msg.TextBody)).
		Int("html_bytes", len(msg.HTMLBody)).
		Msg("dry-run delivery")

	return nil
}
