package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmailJSConfig holds the identifiers of an EmailJS service and template.
type EmailJSConfig struct {
	BaseURL    string
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string
	// HTTPClient is optional; a client with a 30s timeout is used when nil.
	HTTPClient *http.Client
}

// EmailJSSender implements Sender using the EmailJS REST API. The message is
// passed as a parameter bag; the EmailJS template decides the final layout.
type EmailJSSender struct {
	cfg      EmailJSConfig
	endpoint string
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// NewEmailJSSender creates an EmailJSSender.
func NewEmailJSSender(cfg EmailJSConfig) (*EmailJSSender, error) {
	if cfg.ServiceID == "" || cfg.TemplateID == "" || cfg.PublicKey == "" {
		return nil, fmt.Errorf("emailjs: service id, template id and public key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.emailjs.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &EmailJSSender{
		cfg:      cfg,
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/api/v1.0/email/send",
	}, nil
}

// Send implements Sender.
func (s *EmailJSSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	body, err := json.Marshal(emailJSRequest{
		ServiceID:   s.cfg.ServiceID,
		TemplateID:  s.cfg.TemplateID,
		UserID:      s.cfg.PublicKey,
		AccessToken: s.cfg.PrivateKey,
		TemplateParams: map[string]string{
			"to_email":  msg.To,
			"message":   msg.TextBody,
			"html":      msg.HTMLBody,
			"from_name": msg.FromName,
			"subject":   msg.Subject,
			"to_name":   "",
			"recipient": "",
			"email":     "",
			"bcc":       "",
			"cc":        "",
		},
	})
	if err != nil {
		return fmt.Errorf("emailjs: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("emailjs: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("emailjs: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("emailjs: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	return nil
}
