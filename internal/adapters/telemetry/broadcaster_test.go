package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/adapters/svcauth"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

func testTelemetryConfig(ingestURL string) config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:   true,
		IngestURL: ingestURL,
		Timeout:   5 * time.Second,
	}
}

func TestNewBroadcaster(t *testing.T) {
	t.Run("creates broadcaster with valid options", func(t *testing.T) {
		b, err := NewBroadcaster(BroadcasterOptions{Config: testTelemetryConfig("http://dashboard:8400/progress")})
		require.NoError(t, err)
		assert.NotNil(t, b)
	})

	t.Run("returns error when ingest URL is empty", func(t *testing.T) {
		_, err := NewBroadcaster(BroadcasterOptions{Config: config.TelemetryConfig{Timeout: time.Second}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry ingest URL is required")
	})
}

func TestBroadcaster_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the event to the ingest endpoint", func(t *testing.T) {
		var gotKey string
		var gotEvent model.TelemetryEvent
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			gotKey = r.Header.Get(svcauth.HeaderInternalAPIKey)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotEvent))
		}))
		defer server.Close()

		b, err := NewBroadcaster(BroadcasterOptions{
			Config:      testTelemetryConfig(server.URL),
			Credentials: svcauth.NewStaticKey("internal-service-key"),
		})
		require.NoError(t, err)

		b.Emit(ctx, model.TelemetryEvent{
			RunID:                "run-1",
			JobID:                "job-1",
			JobName:              "Widget price watch",
			CurrentStage:         model.StageAnalyzing,
			CompletionPercentage: model.StageAnalyzing.CompletionPercent(),
			SourcesProcessed:     1,
			SourcesTotal:         2,
			Timestamp:            time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC),
		})

		assert.Equal(t, "internal-service-key", gotKey)
		assert.Equal(t, "run-1", gotEvent.RunID)
		assert.Equal(t, model.StageAnalyzing, gotEvent.CurrentStage)
		assert.Equal(t, 55, gotEvent.CompletionPercentage)
		assert.Equal(t, 2, gotEvent.SourcesTotal)
	})

	t.Run("swallows a rejected broadcast", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "ingest queue full", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		b, err := NewBroadcaster(BroadcasterOptions{Config: testTelemetryConfig(server.URL)})
		require.NoError(t, err)

		// Emit has no error return; surviving the call is the contract.
		b.Emit(ctx, model.TelemetryEvent{RunID: "run-1"})
	})

	t.Run("swallows a transport failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		b, err := NewBroadcaster(BroadcasterOptions{Config: testTelemetryConfig(server.URL)})
		require.NoError(t, err)

		b.Emit(ctx, model.TelemetryEvent{RunID: "run-1"})
	})
}
