package svcauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/config"
)

func TestStaticKey_Apply(t *testing.T) {
	t.Run("sets the internal api key header", func(t *testing.T) {
		creds := NewStaticKey("internal-service-key")
		req := httptest.NewRequest(http.MethodPost, "http://scraper/scrape", nil)

		require.NoError(t, creds.Apply(context.Background(), req))

		assert.Equal(t, "internal-service-key", req.Header.Get(HeaderInternalAPIKey))
	})

	t.Run("attaches nothing when the key is empty", func(t *testing.T) {
		creds := NewStaticKey("  ")
		req := httptest.NewRequest(http.MethodPost, "http://scraper/scrape", nil)

		require.NoError(t, creds.Apply(context.Background(), req))

		assert.Empty(t, req.Header.Get(HeaderInternalAPIKey))
	})
}

// discoveryDocument is the subset of the OIDC discovery response the tests
// serve.
type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(discoveryDocument{
			Issuer:                server.URL,
			AuthorizationEndpoint: server.URL + "/auth",
			TokenEndpoint:         server.URL + "/token",
			JwksURI:               server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostFormValue("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "service-token-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	return server
}

func TestNewOAuth(t *testing.T) {
	t.Run("mints and attaches bearer tokens", func(t *testing.T) {
		server := newDiscoveryServer(t)

		creds, err := NewOAuth(context.Background(), config.SvcOAuthConfig{
			ClientID:     "spyglass-worker",
			ClientSecret: "secret",
			DiscoveryURL: server.URL,
			Scopes:       []string{"collaborators"},
		}, server.Client())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "http://scraper/scrape", nil)
		require.NoError(t, creds.Apply(context.Background(), req))

		assert.Equal(t, "Bearer service-token-1", req.Header.Get("Authorization"))
	})

	t.Run("accepts a full discovery URL", func(t *testing.T) {
		server := newDiscoveryServer(t)

		_, err := NewOAuth(context.Background(), config.SvcOAuthConfig{
			ClientID:     "spyglass-worker",
			ClientSecret: "secret",
			DiscoveryURL: server.URL + "/.well-known/openid-configuration",
		}, server.Client())

		require.NoError(t, err)
	})

	t.Run("validates required fields", func(t *testing.T) {
		tests := []struct {
			name   string
			cfg    config.SvcOAuthConfig
			errMsg string
		}{
			{
				name:   "missing client ID",
				cfg:    config.SvcOAuthConfig{ClientSecret: "secret", DiscoveryURL: "http://idp"},
				errMsg: "client ID is required",
			},
			{
				name:   "missing client secret",
				cfg:    config.SvcOAuthConfig{ClientID: "client", DiscoveryURL: "http://idp"},
				errMsg: "client secret is required",
			},
			{
				name:   "missing discovery URL",
				cfg:    config.SvcOAuthConfig{ClientID: "client", ClientSecret: "secret"},
				errMsg: "discovery URL is required",
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewOAuth(context.Background(), tc.cfg, nil)
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
			})
		}
	})
}

func TestFromConfig(t *testing.T) {
	t.Run("static mode builds static key credentials", func(t *testing.T) {
		creds, err := FromConfig(context.Background(), config.ServiceAuthConfig{
			Mode:           config.SvcAuthModeStatic,
			InternalAPIKey: "internal-service-key",
		}, nil)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "http://scraper/scrape", nil)
		require.NoError(t, creds.Apply(context.Background(), req))
		assert.Equal(t, "internal-service-key", req.Header.Get(HeaderInternalAPIKey))
	})

	t.Run("oauth mode builds token credentials", func(t *testing.T) {
		server := newDiscoveryServer(t)

		creds, err := FromConfig(context.Background(), config.ServiceAuthConfig{
			Mode: config.SvcAuthModeOAuth,
			OAuth: config.SvcOAuthConfig{
				ClientID:     "spyglass-worker",
				ClientSecret: "secret",
				DiscoveryURL: server.URL,
			},
		}, server.Client())
		require.NoError(t, err)
		assert.IsType(t, (*OAuth)(nil), creds)
	})
}
