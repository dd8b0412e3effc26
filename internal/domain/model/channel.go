package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ChannelKind identifies a notification transport.
type ChannelKind string

const (
	ChannelKindEmail ChannelKind = "email"
	ChannelKindTeams ChannelKind = "teams"
	ChannelKindSlack ChannelKind = "slack"
)

// Valid returns true if the channel kind is supported by the dispatcher.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelKindEmail, ChannelKindTeams, ChannelKindSlack:
		return true
	default:
		return false
	}
}

// String returns the string representation of the channel kind.
func (k ChannelKind) String() string {
	return string(k)
}

// NotificationChannel is one configured delivery target. Config is
// channel-specific: {email} for email, {webhook_url} for teams and slack.
type NotificationChannel struct {
	ID          string          `json:"id"           db:"id"`
	UserID      string          `json:"user_id"      db:"user_id"`
	ChannelType ChannelKind     `json:"channel_type" db:"channel_type"`
	Name        string          `json:"name"         db:"name"`
	Config      json.RawMessage `json:"config"       db:"config"`
	IsActive    bool            `json:"is_active"    db:"is_active"`
	CreatedAt   time.Time       `json:"created_at"   db:"created_at"`
}

// EmailChannelConfig is the config shape for email channels.
type EmailChannelConfig struct {
	Email string `json:"email"`
}

// WebhookChannelConfig is the config shape for teams and slack channels.
type WebhookChannelConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// EmailConfig decodes the channel config as an email target.
func (c *NotificationChannel) EmailConfig() (EmailChannelConfig, error) {
	var cfg EmailChannelConfig
	if len(c.Config) == 0 {
		return cfg, errors.New("channel config is empty")
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.Email) == "" {
		return cfg, errors.New("channel config has no email address")
	}
	return cfg, nil
}

// WebhookConfig decodes the channel config as a webhook target.
func (c *NotificationChannel) WebhookConfig() (WebhookChannelConfig, error) {
	var cfg WebhookChannelConfig
	if len(c.Config) == 0 {
		return cfg, errors.New("channel config is empty")
	}
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.WebhookURL) == "" {
		return cfg, errors.New("channel config has no webhook_url")
	}
	return cfg, nil
}
