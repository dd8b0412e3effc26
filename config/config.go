package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - services.go: Service mode and worker configuration
//   - collaborators.go: Scraper/analyzer/docstore client configuration
//   - auth.go: Service-to-service authentication configuration
type AppConfig struct {
	// IsDev controls development mode behavior (seed data, relaxed auth).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// WorkerID identifies this worker in lease values and logs.
	// Auto-generated at startup when empty.
	WorkerID string `env:"WORKER_ID"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Services is a comma-delimited list of enabled services.
	// Valid values: scheduler, dispatcher, renotifier, janitor
	Services string `env:"SERVICES" envDefault:"scheduler,dispatcher,renotifier,janitor"`

	// Registry configuration
	Registry RegistryConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Pipeline configuration
	Pipeline PipelineConfig

	// Dispatcher configuration
	Dispatcher DispatcherConfig

	// Re-notifier configuration
	ReNotifier ReNotifierConfig

	// Janitor configuration
	Janitor JanitorConfig

	// Collaborator service clients
	Scraper   ScraperConfig   `envPrefix:"SCRAPER_"`
	Analyzer  AnalyzerConfig  `envPrefix:"ANALYZER_"`
	DocStore  DocStoreConfig  `envPrefix:"DOCSTORE_"`
	Telemetry TelemetryConfig `envPrefix:"TELEMETRY_"`

	// Mail delivery configuration
	Mail MailConfig `envPrefix:"MAIL_"`

	// Channel webhook delivery configuration
	Webhook WebhookConfig `envPrefix:"WEBHOOK_"`

	// Service-to-service authentication
	SvcAuth ServiceAuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Registry.Sanitize()
	c.Scheduler.Sanitize()
	c.Pipeline.Sanitize()
	c.Dispatcher.Sanitize()
	c.ReNotifier.Sanitize()
	c.Janitor.Sanitize()
	c.Scraper.Sanitize()
	c.Analyzer.Sanitize()
	c.DocStore.Sanitize()
	c.Telemetry.Sanitize()
	c.Mail.Sanitize()
	c.Webhook.Sanitize()
	c.SvcAuth.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsSchedulerEnabled returns true if the batch scheduler service is enabled.
func (c *AppConfig) IsSchedulerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeScheduler]
}

// IsDispatcherEnabled returns true if the alert dispatcher service is enabled.
func (c *AppConfig) IsDispatcherEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeDispatcher]
}

// IsReNotifierEnabled returns true if the re-notifier service is enabled.
func (c *AppConfig) IsReNotifierEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReNotifier]
}

// IsJanitorEnabled returns true if the janitor service is enabled.
func (c *AppConfig) IsJanitorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeJanitor]
}
