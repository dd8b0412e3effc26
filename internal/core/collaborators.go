package core

import (
	"context"
	"time"

	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// Scraper fetches source content through the scraping collaborator service.
type Scraper interface {
	Scrape(ctx context.Context, req model.ScrapeRequest) (*model.ScrapeResult, error)
}

// Analyzer scores scraped content against a job's prompt through the
// analysis collaborator service.
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error)
}

// StartRunParams opens a run record in the document archive.
type StartRunParams struct {
	RunID            string
	JobID            string
	UserID           string
	JobName          string
	Prompt           string
	Sources          []string
	FrequencyMinutes int
	ThresholdScore   int
	StartedAt        time.Time
}

// SourceDocumentParams captures one scraped document for archival.
type SourceDocumentParams struct {
	RunID          string
	SourceURL      string
	RawHTML        string
	CleanedContent string
	StatusCode     int
	ResponseTime   time.Duration
	ScrapedAt      time.Time
	ErrorMessage   string
}

// AnalysisDocumentParams captures one analysis outcome for archival.
type AnalysisDocumentParams struct {
	RunID          string
	SourceURL      string
	Provider       string
	ModelName      string
	Prompt         string
	RawResponse    string
	RelevanceScore int
	ProcessingTime time.Duration
	AnalyzedAt     time.Time
	AlertGenerated bool
	AlertTitle     string
	AlertContent   string
}

// CompleteRunParams closes a run record in the document archive.
type CompleteRunParams struct {
	RunID   string
	Summary map[string]any
}

// DocumentStore archives raw scrape and analysis material for later
// inspection. Writes are idempotent per (run, source). Archival is
// best-effort; a failed store never fails the task.
type DocumentStore interface {
	StartRun(ctx context.Context, p StartRunParams) error
	AddSourceDocument(ctx context.Context, p SourceDocumentParams) error
	AddAnalysisDocument(ctx context.Context, p AnalysisDocumentParams) error
	CompleteRun(ctx context.Context, p CompleteRunParams) error
}

// MailSender delivers alert emails.
type MailSender interface {
	// SendAlertEmail sends one alert to one recipient. The ackURL is empty
	// when the job does not require acknowledgment.
	SendAlertEmail(ctx context.Context, to string, payload model.AlertPayload, ackURL string) error
}

// ChannelSender posts an alert to a webhook-style channel (Teams, Slack).
type ChannelSender interface {
	// Send posts the alert card to the channel's webhook URL.
	Send(ctx context.Context, webhookURL string, payload model.AlertPayload, ackURL string) error
}
