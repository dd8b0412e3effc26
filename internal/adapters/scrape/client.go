// Package scrape provides the HTTP client for the scraping collaborator.
package scrape

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
	"github.com/spyglasshq/spyglass/internal/domain/model"
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

// maxErrorBodyBytes bounds how much of an error response is kept for the
// error message.
const maxErrorBodyBytes = 2048

// ClientOptions groups dependencies for the scrape client.
type ClientOptions struct {
	Config      config.ScraperConfig
	Credentials svcauth.Credentials // Optional: service-to-service auth
	HTTPClient  *http.Client        // Optional: defaults to a client with the configured timeout
	Logger      *slog.Logger        // Optional: structured logger
}

// Client calls the scraping collaborator's /scrape endpoint.
type Client struct {
	baseURL     string
	waitSeconds int
	creds       svcauth.Credentials
	http        *http.Client
	logger      *slog.Logger
}

var _ core.Scraper = (*Client)(nil)

// NewClient constructs a new scrape client.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.BaseURL == "" {
		return nil, errors.New("scraper base URL is required")
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
		baseURL:     cfg.BaseURL,
		waitSeconds: cfg.WaitSeconds,
		creds:       opts.Credentials,
		http:        hc,
		logger:      logger.With("component", "scrape_client"),
	}, nil
}

// Scrape fetches one source through the collaborator. A response with
// success=false is returned as a result, not an error; errors mean the
// collaborator itself could not be reached or answered outside its contract.
func (c *Client) Scrape(ctx context.Context, req model.ScrapeRequest) (*model.ScrapeResult, error) {
	if req.WaitTime == 0 {
		req.WaitTime = c.waitSeconds
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode scrape request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.creds != nil {
		if err := c.creds.Apply(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("authenticate scrape request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "scraper unreachable for %s", req.URL)
	}
	defer closeBody(resp.Body, c.logger)

	if resp.StatusCode != http.StatusOK {
		detail := readErrorBody(resp.Body)
		return nil, apperrors.Unavailablef("scraper returned %d for %s: %s", resp.StatusCode, req.URL, detail)
	}

	var result model.ScrapeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}

	c.logger.DebugContext(ctx, "source scraped",
		"url", req.URL,
		"status_code", result.StatusCode,
		"content_bytes", len(result.Content),
		"duration", time.Since(start))

	return &result, nil
}

func closeBody(body io.ReadCloser, logger *slog.Logger) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		logger.Debug("drain response body", "error", err)
	}
	if err := body.Close(); err != nil {
		logger.Debug("close response body", "error", err)
	}
}

func readErrorBody(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, maxErrorBodyBytes))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	return string(bytes.TrimSpace(b))
}
