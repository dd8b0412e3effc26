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

// teamsThemeColor is the accent color on posted alert cards.
const teamsThemeColor = "FF6B35"

// TeamsOptions groups dependencies for the Teams channel sender.
type TeamsOptions struct {
	Config     config.WebhookConfig
	HTTPClient *http.Client // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger // Optional: structured logger
}

// TeamsSender posts alert cards to Teams incoming webhooks.
type TeamsSender struct {
	retryLimit int
	http       *http.Client
	logger     *slog.Logger
}

var _ core.ChannelSender = (*TeamsSender)(nil)

// NewTeamsSender constructs a new Teams channel sender.
func NewTeamsSender(opts TeamsOptions) *TeamsSender {
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

	return &TeamsSender{
		retryLimit: cfg.RetryLimit,
		http:       hc,
		logger:     logger.With("component", "teams_sender"),
	}
}

// messageCard is the legacy Teams connector card format, still the contract
// for incoming webhooks.
type messageCard struct {
	Type            string        `json:"@type"`
	Context         string        `json:"@context"`
	Summary         string        `json:"summary"`
	ThemeColor      string        `json:"themeColor"`
	Sections        []cardSection `json:"sections"`
	PotentialAction []cardAction  `json:"potentialAction,omitempty"`
}

type cardSection struct {
	ActivityTitle    string     `json:"activityTitle"`
	ActivitySubtitle string     `json:"activitySubtitle,omitempty"`
	ActivityText     string     `json:"activityText,omitempty"`
	Facts            []cardFact `json:"facts,omitempty"`
}

type cardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type cardAction struct {
	Type    string       `json:"@type"`
	Name    string       `json:"name"`
	Targets []cardTarget `json:"targets"`
}

type cardTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// Send posts the alert card to the channel's webhook URL.
func (t *TeamsSender) Send(ctx context.Context, webhookURL string, payload model.AlertPayload, ackURL string) error {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return errors.New("teams webhook URL is required")
	}

	body, err := json.Marshal(t.formatCard(payload, ackURL))
	if err != nil {
		return fmt.Errorf("encode teams card: %w", err)
	}

	if err := deliverWithRetry(ctx, t.http, webhookURL, body, t.retryLimit); err != nil {
		return fmt.Errorf("teams delivery: %w", err)
	}

	t.logger.DebugContext(ctx, "teams card delivered", "alert_id", payload.AlertID)
	return nil
}

func (t *TeamsSender) formatCard(payload model.AlertPayload, ackURL string) messageCard {
	card := messageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    payload.Title,
		ThemeColor: teamsThemeColor,
		Sections: []cardSection{{
			ActivityTitle:    "Monitoring alert",
			ActivitySubtitle: payload.Title,
			ActivityText:     payload.Content,
			Facts: []cardFact{
				{Name: "Relevance score", Value: scoreDisplay(payload.RelevanceScore)},
				{Name: "Source", Value: payload.SourceURL},
				{Name: "Time", Value: displayTime(payload.Timestamp)},
			},
		}},
	}

	if payload.SourceURL != "" {
		card.PotentialAction = append(card.PotentialAction, cardAction{
			Type:    "OpenUri",
			Name:    "View source",
			Targets: []cardTarget{{OS: "default", URI: payload.SourceURL}},
		})
	}
	if ackURL != "" {
		card.PotentialAction = append(card.PotentialAction, cardAction{
			Type:    "OpenUri",
			Name:    "Acknowledge alert",
			Targets: []cardTarget{{OS: "default", URI: ackURL}},
		})
	}

	return card
}
