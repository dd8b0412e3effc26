// Package docstore provides the HTTP client for the document archive
// collaborator. The archive keeps raw scrape and analysis material per run;
// writes are idempotent by (run, source URL) on the archive side.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/svcauth"
	"github.com/spyglasshq/spyglass/internal/core"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

// ClientOptions groups dependencies for the document archive client.
type ClientOptions struct {
	Config      config.DocStoreConfig
	Credentials svcauth.Credentials // Optional: service-to-service auth
	HTTPClient  *http.Client        // Optional: defaults to a client with the configured timeout
	Logger      *slog.Logger        // Optional: structured logger
}

// Client archives run material through the document store's run endpoints.
type Client struct {
	baseURL string
	creds   svcauth.Credentials
	http    *http.Client
	logger  *slog.Logger
}

var _ core.DocumentStore = (*Client)(nil)

// NewClient constructs a new document archive client.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("document store base URL is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		creds:   opts.Credentials,
		http:    hc,
		logger:  logger.With("component", "docstore_client"),
	}, nil
}

// startRunRequest is the wire body for opening a run record.
type startRunRequest struct {
	JobID            string    `json:"job_id"`
	JobRunID         string    `json:"job_run_id"`
	UserID           string    `json:"user_id"`
	JobName          string    `json:"job_name"`
	UserPrompt       string    `json:"user_prompt"`
	Sources          []string  `json:"sources"`
	FrequencyMinutes int       `json:"frequency_minutes"`
	ThresholdScore   int       `json:"threshold_score"`
	StartedAt        time.Time `json:"started_at"`
}

// sourceDocumentRequest is the wire body for one archived scrape.
type sourceDocumentRequest struct {
	SourceURL      string    `json:"source_url"`
	RawHTML        string    `json:"raw_html"`
	CleanedContent string    `json:"cleaned_content"`
	ScrapeTime     time.Time `json:"scrape_timestamp"`
	ResponseTimeMS int64     `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// analysisDocumentRequest is the wire body for one archived analysis.
type analysisDocumentRequest struct {
	SourceURL        string    `json:"source_url"`
	Provider         string    `json:"llm_provider"`
	ModelName        string    `json:"model_name"`
	UserPrompt       string    `json:"user_prompt"`
	RawResponse      string    `json:"raw_response"`
	RelevanceScore   int       `json:"relevance_score"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	AnalysisTime     time.Time `json:"analysis_timestamp"`
	AlertGenerated   bool      `json:"alert_generated"`
	AlertTitle       string    `json:"alert_title,omitempty"`
	AlertContent     string    `json:"alert_content,omitempty"`
}

// StartRun opens a run record in the archive.
func (c *Client) StartRun(ctx context.Context, p core.StartRunParams) error {
	return c.post(ctx, "/job-execution/start", startRunRequest{
		JobID:            p.JobID,
		JobRunID:         p.RunID,
		UserID:           p.UserID,
		JobName:          p.JobName,
		UserPrompt:       p.Prompt,
		Sources:          p.Sources,
		FrequencyMinutes: p.FrequencyMinutes,
		ThresholdScore:   p.ThresholdScore,
		StartedAt:        p.StartedAt,
	})
}

// AddSourceDocument archives one scraped document under its run.
func (c *Client) AddSourceDocument(ctx context.Context, p core.SourceDocumentParams) error {
	return c.post(ctx, "/job-execution/"+p.RunID+"/source-data", sourceDocumentRequest{
		SourceURL:      p.SourceURL,
		RawHTML:        p.RawHTML,
		CleanedContent: p.CleanedContent,
		ScrapeTime:     p.ScrapedAt,
		ResponseTimeMS: p.ResponseTime.Milliseconds(),
		StatusCode:     p.StatusCode,
		ErrorMessage:   p.ErrorMessage,
	})
}

// AddAnalysisDocument archives one analysis outcome under its run.
func (c *Client) AddAnalysisDocument(ctx context.Context, p core.AnalysisDocumentParams) error {
	return c.post(ctx, "/job-execution/"+p.RunID+"/llm-analysis", analysisDocumentRequest{
		SourceURL:        p.SourceURL,
		Provider:         p.Provider,
		ModelName:        p.ModelName,
		UserPrompt:       p.Prompt,
		RawResponse:      p.RawResponse,
		RelevanceScore:   p.RelevanceScore,
		ProcessingTimeMS: p.ProcessingTime.Milliseconds(),
		AnalysisTime:     p.AnalyzedAt,
		AlertGenerated:   p.AlertGenerated,
		AlertTitle:       p.AlertTitle,
		AlertContent:     p.AlertContent,
	})
}

// CompleteRun closes a run record. The summary map is posted as the body.
func (c *Client) CompleteRun(ctx context.Context, p core.CompleteRunParams) error {
	summary := p.Summary
	if summary == nil {
		summary = map[string]any{}
	}
	return c.post(ctx, "/job-execution/"+p.RunID+"/complete", summary)
}

// post sends one JSON body to the archive and checks for a 2xx answer.
func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode archive request for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build archive request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.creds != nil {
		if err := c.creds.Apply(ctx, req); err != nil {
			return fmt.Errorf("authenticate archive request: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "document store unreachable for %s", path)
	}
	defer func() {
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			c.logger.Debug("drain archive response body", "error", drainErr)
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("close archive response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apperrors.Unavailablef("document store returned %d for %s", resp.StatusCode, path)
	}

	c.logger.DebugContext(ctx, "archive write accepted", "path", path, "status_code", resp.StatusCode)
	return nil
}
