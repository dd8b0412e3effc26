package config

import (
	"strings"
	"time"
)

// ScraperConfig contains scraping collaborator client configuration.
type ScraperConfig struct {
	// BaseURL is the scraper service endpoint.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8191"`

	// Timeout bounds one scrape call end to end.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`

	// WaitSeconds is passed to the scraper as page settle time.
	WaitSeconds int `env:"WAIT_SECONDS" envDefault:"2"`
}

// Sanitize applies guardrails to scraper client configuration values.
func (s *ScraperConfig) Sanitize() {
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if s.Timeout < time.Second {
		s.Timeout = time.Second
	}
	if s.WaitSeconds < 0 {
		s.WaitSeconds = 0
	}
}

// AnalyzerConfig contains analysis collaborator client configuration.
type AnalyzerConfig struct {
	// BaseURL is the analyzer service endpoint.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8200"`

	// Timeout bounds one analysis call end to end.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// Model names the scoring model the analyzer should use.
	Model string `env:"MODEL" envDefault:"relevance-v2"`

	// MaxTokens caps the analyzer response size.
	MaxTokens int `env:"MAX_TOKENS" envDefault:"1024"`
}

// Sanitize applies guardrails to analyzer client configuration values.
func (a *AnalyzerConfig) Sanitize() {
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.Timeout < time.Second {
		a.Timeout = time.Second
	}
	if a.MaxTokens < 1 {
		a.MaxTokens = 1
	}
}

// DocStoreConfig contains document archive client configuration.
// Archival is optional; the pipeline skips it when disabled.
type DocStoreConfig struct {
	Enabled bool   `env:"ENABLED"  envDefault:"false"`
	BaseURL string `env:"BASE_URL" envDefault:""`

	// Timeout bounds one archive call. Archival is best-effort, so this
	// stays short.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to document archive client configuration values.
func (d *DocStoreConfig) Sanitize() {
	d.BaseURL = strings.TrimRight(strings.TrimSpace(d.BaseURL), "/")
	if d.BaseURL == "" {
		d.Enabled = false
	}
	if d.Timeout < time.Second {
		d.Timeout = time.Second
	}
}

// TelemetryConfig contains progress broadcast client configuration.
// Broadcasting is fire-and-forget; the pipeline never waits on it.
type TelemetryConfig struct {
	Enabled   bool   `env:"ENABLED"    envDefault:"false"`
	IngestURL string `env:"INGEST_URL" envDefault:""`

	// Timeout bounds one broadcast POST.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to telemetry client configuration values.
func (t *TelemetryConfig) Sanitize() {
	t.IngestURL = strings.TrimRight(strings.TrimSpace(t.IngestURL), "/")
	if t.IngestURL == "" {
		t.Enabled = false
	}
	if t.Timeout < time.Second {
		t.Timeout = time.Second
	}
}

// MailConfig contains alert email delivery configuration.
type MailConfig struct {
	// APIKey authenticates against the mail provider. Email delivery is
	// skipped when empty.
	APIKey string `env:"API_KEY" envDefault:""`

	// BaseURL is the mail provider API endpoint.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.sendgrid.com"`

	FromEmail string `env:"FROM_EMAIL" envDefault:"alerts@spyglass.dev"`
	FromName  string `env:"FROM_NAME"  envDefault:"Spyglass Alerts"`

	// Timeout bounds one send call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to mail configuration values.
func (m *MailConfig) Sanitize() {
	m.APIKey = strings.TrimSpace(m.APIKey)
	m.BaseURL = strings.TrimRight(strings.TrimSpace(m.BaseURL), "/")
	m.FromEmail = strings.TrimSpace(m.FromEmail)
	if m.Timeout < time.Second {
		m.Timeout = time.Second
	}
}

// IsEnabled returns true when email delivery is configured.
func (m *MailConfig) IsEnabled() bool {
	return m.APIKey != ""
}

// WebhookConfig contains delivery settings shared by the Teams and Slack
// channel senders. Webhook URLs themselves live in each notification
// channel's config, not here.
type WebhookConfig struct {
	// Timeout bounds one webhook POST.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`

	// RetryLimit is how many times a failed POST is retried.
	RetryLimit int `env:"RETRY_LIMIT" envDefault:"1"`
}

// Sanitize applies guardrails to webhook delivery configuration values.
func (w *WebhookConfig) Sanitize() {
	if w.Timeout < time.Second {
		w.Timeout = time.Second
	}
	if w.RetryLimit < 0 {
		w.RetryLimit = 0
	}
}
