// Package svcauth provides the service-to-service credentials collaborator
// clients attach to outbound requests.
package svcauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spyglasshq/spyglass/config"
)

// HeaderInternalAPIKey carries the shared secret between spyglass workers and
// the collaborator services.
const HeaderInternalAPIKey = "X-Internal-API-Key"

// Credentials attaches a service identity to an outbound request.
type Credentials interface {
	Apply(ctx context.Context, req *http.Request) error
}

// StaticKey sends the shared internal API key header on every request.
type StaticKey struct {
	key string
}

var _ Credentials = (*StaticKey)(nil)

// NewStaticKey builds static-key credentials. An empty key yields credentials
// that attach nothing, for collaborators running without auth.
func NewStaticKey(key string) *StaticKey {
	return &StaticKey{key: strings.TrimSpace(key)}
}

// Apply implements Credentials.
func (s *StaticKey) Apply(_ context.Context, req *http.Request) error {
	if s.key != "" {
		req.Header.Set(HeaderInternalAPIKey, s.key)
	}
	return nil
}

// OAuth mints client-credentials tokens against an OIDC-discovered token
// endpoint and attaches them as bearer tokens. The underlying source caches
// tokens and refreshes them before expiry.
type OAuth struct {
	source oauth2.TokenSource
}

var _ Credentials = (*OAuth)(nil)

// NewOAuth runs OIDC discovery once and builds OAuth credentials.
func NewOAuth(ctx context.Context, cfg config.SvcOAuthConfig, client *http.Client) (*OAuth, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}

	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       cfg.Scopes,
	}

	return &OAuth{source: cc.TokenSource(ctx)}, nil
}

// Apply implements Credentials.
func (o *OAuth) Apply(_ context.Context, req *http.Request) error {
	token, err := o.source.Token()
	if err != nil {
		return fmt.Errorf("mint service token: %w", err)
	}
	token.SetAuthHeader(req)
	return nil
}

// FromConfig builds the credentials for the configured auth mode.
func FromConfig(ctx context.Context, cfg config.ServiceAuthConfig, client *http.Client) (Credentials, error) {
	if cfg.Mode == config.SvcAuthModeOAuth {
		creds, err := NewOAuth(ctx, cfg.OAuth, client)
		if err != nil {
			return nil, fmt.Errorf("oauth service credentials: %w", err)
		}
		return creds, nil
	}
	return NewStaticKey(cfg.InternalAPIKey), nil
}
