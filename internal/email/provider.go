package email

import (
	"context"
	"fmt"

	"github.com/bulkmail/bulkmail/internal/config"
	"github.com/bulkmail/bulkmail/internal/logger"
)

// NewSender builds the delivery provider selected by cfg.Provider.
func NewSender(ctx context.Context, cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch cfg.Provider {
	case "emailjs":
		return NewEmailJSSender(EmailJSConfig{
			BaseURL:    cfg.EmailJS.BaseURL,
			ServiceID:  cfg.EmailJS.ServiceID,
			TemplateID: cfg.EmailJS.TemplateID,
			PublicKey:  cfg.EmailJS.PublicKey,
			PrivateKey: cfg.EmailJS.PrivateKey,
		})
	case "gmail":
		if cfg.Gmail.RefreshToken != "" {
			return NewGmailSenderWithToken(ctx,
				cfg.Gmail.ClientID,
				cfg.Gmail.ClientSecret,
				cfg.Gmail.RefreshToken,
				cfg.Gmail.SenderAddress,
			)
		}
		return NewGmailSender(ctx, GmailConfig{
			CredentialsJSON: cfg.Gmail.CredentialsJSON,
			SenderAddress:   cfg.Gmail.SenderAddress,
		})
	case "resend":
		return NewResendSender(cfg.Resend.APIKey, cfg.Resend.SenderAddress)
	case "log":
		return NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
