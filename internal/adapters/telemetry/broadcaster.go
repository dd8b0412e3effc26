// Package telemetry posts pipeline progress events to the dashboard ingest
// endpoint. Broadcasting is fire-and-forget: failures are logged and
// swallowed, never surfaced to the pipeline.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/svcauth"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// BroadcasterOptions groups dependencies for the telemetry broadcaster.
type BroadcasterOptions struct {
	Config      config.TelemetryConfig
	Credentials svcauth.Credentials // Optional: service-to-service auth
	HTTPClient  *http.Client        // Optional: defaults to a client with the configured timeout
	Logger      *slog.Logger        // Optional: structured logger
}

// Broadcaster publishes stage-transition events over HTTP.
type Broadcaster struct {
	ingestURL string
	creds     svcauth.Credentials
	http      *http.Client
	logger    *slog.Logger
}

var _ core.TelemetryBroadcaster = (*Broadcaster)(nil)

// NewBroadcaster constructs a new telemetry broadcaster.
func NewBroadcaster(opts BroadcasterOptions) (*Broadcaster, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if cfg.IngestURL == "" {
		return nil, errors.New("telemetry ingest URL is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broadcaster{
		ingestURL: cfg.IngestURL,
		creds:     opts.Credentials,
		http:      hc,
		logger:    logger.With("component", "telemetry_broadcaster"),
	}, nil
}

// Emit posts one progress event. Failures never propagate.
func (b *Broadcaster) Emit(ctx context.Context, event model.TelemetryEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		b.logger.WarnContext(ctx, "encode telemetry event", "run_id", event.RunID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.ingestURL, bytes.NewReader(body))
	if err != nil {
		b.logger.WarnContext(ctx, "build telemetry request", "run_id", event.RunID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if b.creds != nil {
		if err := b.creds.Apply(ctx, req); err != nil {
			b.logger.WarnContext(ctx, "authenticate telemetry request", "run_id", event.RunID, "error", err)
			return
		}
	}

	resp, err := b.http.Do(req)
	if err != nil {
		b.logger.WarnContext(ctx, "telemetry broadcast failed",
			"run_id", event.RunID,
			"stage", event.CurrentStage,
			"error", err)
		return
	}
	defer func() {
		if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
			b.logger.Debug("drain telemetry response body", "error", drainErr)
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			b.logger.Debug("close telemetry response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b.logger.WarnContext(ctx, "telemetry broadcast rejected",
			"run_id", event.RunID,
			"stage", event.CurrentStage,
			"status_code", resp.StatusCode)
		return
	}

	b.logger.DebugContext(ctx, "telemetry broadcast accepted",
		"run_id", event.RunID,
		"stage", event.CurrentStage,
		"completion", event.CompletionPercentage)
}
