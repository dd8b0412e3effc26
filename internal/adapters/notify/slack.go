package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// SlackOptions groups dependencies for the Slack channel sender.
type SlackOptions struct {
	Config     config.WebhookConfig
	HTTPClient *http.Client // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger // Optional: structured logger
}

// SlackSender posts alert messages to Slack incoming webhooks.
type SlackSender struct {
	retryLimit int
	http       *http.Client
	logger     *slog.Logger
}

var _ core.ChannelSender = (*SlackSender)(nil)

// NewSlackSender constructs a new Slack channel sender.
func NewSlackSender(opts SlackOptions) *SlackSender {
	cfg := opts.Config
	cfg.Sanitize()

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SlackSender{
		retryLimit: cfg.RetryLimit,
		http:       hc,
		logger:     logger.With("component", "slack_sender"),
	}
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Send posts the alert message to the channel's webhook URL.
func (s *SlackSender) Send(ctx context.Context, webhookURL string, payload model.AlertPayload, ackURL string) error {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return errors.New("slack webhook URL is required")
	}

	body, err := json.Marshal(s.formatMessage(payload, ackURL))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	if err := deliverWithRetry(ctx, s.http, webhookURL, body, s.retryLimit); err != nil {
		return fmt.Errorf("slack delivery: %w", err)
	}

	s.logger.DebugContext(ctx, "slack message delivered", "alert_id", payload.AlertID)
	return nil
}

func (s *SlackSender) formatMessage(payload model.AlertPayload, ackURL string) slackMessage {
	fields := []slackField{
		{Title: "Message", Value: payload.Content, Short: false},
		{Title: "Relevance score", Value: scoreDisplay(payload.RelevanceScore), Short: true},
		{Title: "Time", Value: displayTime(payload.Timestamp), Short: true},
	}
	if payload.SourceURL != "" {
		fields = append(fields, slackField{
			Title: "Source",
			Value: fmt.Sprintf("<%s|View source>", payload.SourceURL),
			Short: true,
		})
	}
	if ackURL != "" {
		fields = append(fields, slackField{
			Title: "Acknowledge",
			Value: fmt.Sprintf("<%s|Acknowledge alert>", ackURL),
			Short: true,
		})
	}

	return slackMessage{
		Text: "*" + payload.Title + "*",
		Attachments: []slackAttachment{{
			Color:  "danger",
			Fields: fields,
		}},
	}
}
