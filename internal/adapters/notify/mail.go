package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// MailOptions groups dependencies for the SendGrid mail sender.
type MailOptions struct {
	Config     config.MailConfig
	HTTPClient *http.Client // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger // Optional: structured logger
}

// MailSender delivers alert emails through the SendGrid v3 mail API.
type MailSender struct {
	baseURL   string
	apiKey    string
	fromEmail string
	fromName  string
	http      *http.Client
	logger    *slog.Logger
}

var _ core.MailSender = (*MailSender)(nil)

// NewMailSender constructs a new SendGrid mail sender.
func NewMailSender(opts MailOptions) (*MailSender, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.APIKey == "" {
		return nil, errors.New("mail API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("mail base URL is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("mail from address is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MailSender{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		http:      hc,
		logger:    logger.With("component", "mail_sender"),
	}, nil
}

// mailAddress is one SendGrid address entry.
type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// personalization is one SendGrid recipient group.
type personalization struct {
	To []mailAddress `json:"to"`
}

// mailContent is one SendGrid body part.
type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// mailSendRequest is the SendGrid v3 mail/send wire body.
type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             mailAddress       `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

// SendAlertEmail sends one alert to one recipient. Plain-text and HTML parts
// are always both attached; plain text must come first per the SendGrid API.
func (m *MailSender) SendAlertEmail(ctx context.Context, to string, payload model.AlertPayload, ackURL string) error {
	if to == "" {
		return errors.New("recipient address is required")
	}

	htmlBody, err := renderHTMLBody(payload, ackURL)
	if err != nil {
		return err
	}

	body, err := json.Marshal(mailSendRequest{
		Personalizations: []personalization{{To: []mailAddress{{Email: to}}}},
		From:             mailAddress{Email: m.fromEmail, Name: m.fromName},
		Subject:          "Alert: " + payload.Title,
		Content: []mailContent{
			{Type: "text/plain", Value: renderTextBody(payload, ackURL)},
			{Type: "text/html", Value: htmlBody},
		},
	})
	if err != nil {
		return fmt.Errorf("encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}

	// SendGrid acknowledges an accepted send with 202 and an empty body.
	if resp.StatusCode != http.StatusAccepted {
		return m.rejectedSend(resp)
	}

	if err := drainWebhookBody(resp); err != nil {
		return err
	}

	m.logger.DebugContext(ctx, "alert email accepted", "alert_id", payload.AlertID, "to", to)
	return nil
}

func (m *MailSender) rejectedSend(resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if closeErr := resp.Body.Close(); closeErr != nil {
		m.logger.Debug("close mail response body", "error", closeErr)
	}
	if readErr != nil {
		return fmt.Errorf("mail provider returned %d", resp.StatusCode)
	}
	return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))
}
