package config

import (
	"fmt"
	"strings"
)

// SvcAuthMode represents how spyglass authenticates against collaborator services.
type SvcAuthMode string

const (
	// SvcAuthModeStatic sends a shared internal API key header.
	SvcAuthModeStatic SvcAuthMode = "static"
	// SvcAuthModeOAuth fetches service tokens via OIDC client credentials.
	SvcAuthModeOAuth SvcAuthMode = "oauth"
)

// UnmarshalText implements encoding.TextUnmarshaler for SvcAuthMode.
func (a *SvcAuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "static", "oauth":
		*a = SvcAuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid SvcAuthMode: %q (valid options: static, oauth)", v)
	}
}

// SvcOAuthConfig contains OIDC client-credentials configuration for
// service-to-service calls.
type SvcOAuthConfig struct {
	ClientID     string   `env:"CLIENT_ID"     envDefault:"spyglass-worker"`
	ClientSecret string   `env:"CLIENT_SECRET" envDefault:""`
	DiscoveryURL string   `env:"DISCOVERY_URL"`
	Scopes       []string `env:"SCOPES"        envDefault:"collaborators" envSeparator:";"`
}

// ServiceAuthConfig groups service-to-service authentication configuration.
type ServiceAuthConfig struct {
	// Mode determines which credential the collaborator clients attach.
	Mode SvcAuthMode `env:"SVC_AUTH_MODE" envDefault:"static"`

	// InternalAPIKey is the shared key sent as X-Internal-API-Key when
	// Mode=static. Requests go out unauthenticated when empty.
	InternalAPIKey string `env:"INTERNAL_API_KEY" envDefault:""`

	// OAuth configuration (used when Mode=oauth).
	OAuth SvcOAuthConfig `envPrefix:"SVC_OAUTH_"`
}

// Sanitize applies guardrails to service auth configuration values.
func (s *ServiceAuthConfig) Sanitize() {
	s.InternalAPIKey = strings.TrimSpace(s.InternalAPIKey)
	s.OAuth.DiscoveryURL = strings.TrimSpace(s.OAuth.DiscoveryURL)

	// OAuth without a discovery endpoint cannot mint tokens.
	if s.Mode == SvcAuthModeOAuth && s.OAuth.DiscoveryURL == "" {
		s.Mode = SvcAuthModeStatic
	}
}
