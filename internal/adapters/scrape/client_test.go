package scrape

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
	apperrors "github.com/spyglasshq/spyglass/internal/errors"
)

func testScraperConfig(baseURL string) config.ScraperConfig {
	return config.ScraperConfig{
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
		WaitSeconds: 3,
	}
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with valid options", func(t *testing.T) {
		client, err := NewClient(ClientOptions{Config: testScraperConfig("http://scraper:8001")})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("returns error when base URL is empty", func(t *testing.T) {
		_, err := NewClient(ClientOptions{Config: config.ScraperConfig{Timeout: time.Second}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scraper base URL is required")
	})
}

func TestClient_Scrape(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the request and decodes the result", func(t *testing.T) {
		var gotReq model.ScrapeRequest
		var gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/scrape", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			gotKey = r.Header.Get(svcauth.HeaderInternalAPIKey)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

			_ = json.NewEncoder(w).Encode(model.ScrapeResult{
				URL:        gotReq.URL,
				Content:    "<html>widgets on sale</html>",
				StatusCode: 200,
				Success:    true,
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientOptions{
			Config:      testScraperConfig(server.URL),
			Credentials: svcauth.NewStaticKey("internal-service-key"),
		})
		require.NoError(t, err)

		result, err := client.Scrape(ctx, model.ScrapeRequest{URL: "https://shop.example.com/widgets"})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "<html>widgets on sale</html>", result.Content)
		assert.Equal(t, "https://shop.example.com/widgets", gotReq.URL)
		assert.Equal(t, 3, gotReq.WaitTime)
		assert.Equal(t, "internal-service-key", gotKey)
	})

	t.Run("keeps an explicit wait time", func(t *testing.T) {
		var gotReq model.ScrapeRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			_ = json.NewEncoder(w).Encode(model.ScrapeResult{Success: true, Content: "ok"})
		}))
		defer server.Close()

		client, err := NewClient(ClientOptions{Config: testScraperConfig(server.URL)})
		require.NoError(t, err)

		_, err = client.Scrape(ctx, model.ScrapeRequest{URL: "https://shop.example.com/", WaitTime: 7})

		require.NoError(t, err)
		assert.Equal(t, 7, gotReq.WaitTime)
	})

	t.Run("passes a scraper-reported failure through as a result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(model.ScrapeResult{
				Success:    false,
				StatusCode: 403,
				Error:      "blocked by origin",
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientOptions{Config: testScraperConfig(server.URL)})
		require.NoError(t, err)

		result, err := client.Scrape(ctx, model.ScrapeRequest{URL: "https://shop.example.com/"})

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, 403, result.StatusCode)
		assert.Equal(t, "blocked by origin", result.Error)
	})

	t.Run("treats a non-200 response as unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "browser pool exhausted", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, err := NewClient(ClientOptions{Config: testScraperConfig(server.URL)})
		require.NoError(t, err)

		_, err = client.Scrape(ctx, model.ScrapeRequest{URL: "https://shop.example.com/"})

		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
		assert.Contains(t, err.Error(), "503")
		assert.Contains(t, err.Error(), "browser pool exhausted")
	})

	t.Run("treats a transport failure as unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		server.Close()

		client, err := NewClient(ClientOptions{Config: testScraperConfig(server.URL)})
		require.NoError(t, err)

		_, err = client.Scrape(ctx, model.ScrapeRequest{URL: "https://shop.example.com/"})

		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})

	t.Run("rejects a malformed response body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		client, err := NewClient(ClientOptions{Config: testScraperConfig(server.URL)})
		require.NoError(t, err)

		_, err = client.Scrape(ctx, model.ScrapeRequest{URL: "https://shop.example.com/"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode scrape response")
	})
}
