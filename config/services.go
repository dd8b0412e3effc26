package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeScheduler runs the batch scheduler and task pipeline.
	ServiceModeScheduler ServiceMode = "scheduler"
	// ServiceModeDispatcher runs the alert dispatcher.
	ServiceModeDispatcher ServiceMode = "dispatcher"
	// ServiceModeReNotifier runs the re-notifier for unacknowledged alerts.
	ServiceModeReNotifier ServiceMode = "renotifier"
	// ServiceModeJanitor runs the janitor for orphan sweeps and retention.
	ServiceModeJanitor ServiceMode = "janitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeScheduler,
		ServiceModeDispatcher,
		ServiceModeReNotifier,
		ServiceModeJanitor,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeScheduler,
			ServiceModeDispatcher,
			ServiceModeReNotifier,
			ServiceModeJanitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: scheduler, dispatcher, renotifier, janitor)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RegistryConfig contains job registry configuration.
type RegistryConfig struct {
	// CacheTTL is how long cached job definitions stay fresh.
	CacheTTL time.Duration `env:"REGISTRY_CACHE_TTL" envDefault:"300s"`
}

// Sanitize applies guardrails to registry configuration values.
func (r *RegistryConfig) Sanitize() {
	if r.CacheTTL < time.Second {
		r.CacheTTL = time.Second
	}
}

// SchedulerConfig contains batch scheduler configuration.
type SchedulerConfig struct {
	// Interval is the scheduler tick interval.
	Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`

	// BatchSize is the number of jobs evaluated per batch within a tick.
	BatchSize int `env:"SCHEDULER_BATCH_SIZE" envDefault:"100"`

	// MaxConcurrentJobs bounds concurrently executing scheduled jobs.
	MaxConcurrentJobs int `env:"SCHEDULER_MAX_CONCURRENT_JOBS" envDefault:"50"`

	// MaxConcurrentSources bounds concurrently processed sources across all
	// runs of this worker.
	MaxConcurrentSources int `env:"SCHEDULER_MAX_CONCURRENT_SOURCES" envDefault:"10"`

	// MaxConcurrentImmediate bounds concurrently executing immediate runs
	// (run_now and create signals).
	MaxConcurrentImmediate int `env:"SCHEDULER_MAX_CONCURRENT_IMMEDIATE" envDefault:"10"`

	// SignalDrainLimit caps how many lifecycle signals one tick drains.
	SignalDrainLimit int `env:"SCHEDULER_SIGNAL_DRAIN_LIMIT" envDefault:"100"`

	// FailureAlertStreak is the consecutive-failed-tick count that triggers an
	// operator notification. Zero disables the notification.
	FailureAlertStreak int `env:"SCHEDULER_FAILURE_ALERT_STREAK" envDefault:"3"`
}

// Sanitize applies guardrails to scheduler configuration values.
func (s *SchedulerConfig) Sanitize() {
	if s.Interval < time.Second {
		s.Interval = time.Second
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.MaxConcurrentJobs < 1 {
		s.MaxConcurrentJobs = 1
	}
	if s.MaxConcurrentSources < 1 {
		s.MaxConcurrentSources = 1
	}
	if s.MaxConcurrentImmediate < 1 {
		s.MaxConcurrentImmediate = 1
	}
	if s.SignalDrainLimit < 1 {
		s.SignalDrainLimit = 1
	}
	if s.FailureAlertStreak < 0 {
		s.FailureAlertStreak = 0
	}
}

// PipelineConfig contains task pipeline configuration.
type PipelineConfig struct {
	// SourceJitterMin/Max bound the randomized pause between sources of the
	// same job, spreading load on scraped origins.
	SourceJitterMin time.Duration `env:"PIPELINE_SOURCE_JITTER_MIN" envDefault:"3s"`
	SourceJitterMax time.Duration `env:"PIPELINE_SOURCE_JITTER_MAX" envDefault:"5s"`

	// AnalysisJitterMin/Max bound the randomized pause between scraping and
	// analysis, spreading load on the analyzer.
	AnalysisJitterMin time.Duration `env:"PIPELINE_ANALYSIS_JITTER_MIN" envDefault:"2s"`
	AnalysisJitterMax time.Duration `env:"PIPELINE_ANALYSIS_JITTER_MAX" envDefault:"4s"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.SourceJitterMin < 0 {
		p.SourceJitterMin = 0
	}
	if p.SourceJitterMax < p.SourceJitterMin {
		p.SourceJitterMax = p.SourceJitterMin
	}
	if p.AnalysisJitterMin < 0 {
		p.AnalysisJitterMin = 0
	}
	if p.AnalysisJitterMax < p.AnalysisJitterMin {
		p.AnalysisJitterMax = p.AnalysisJitterMin
	}
}

// DispatcherConfig contains alert dispatcher configuration.
type DispatcherConfig struct {
	// Concurrency is the number of dispatcher worker goroutines. The
	// per-alert processed record keeps concurrent workers from
	// double-delivering.
	Concurrency int `env:"DISPATCHER_CONCURRENCY" envDefault:"2"`

	// PollTimeout is the blocking-pop timeout against the alert queue.
	PollTimeout time.Duration `env:"DISPATCHER_POLL_TIMEOUT" envDefault:"1s"`

	// ProcessedRecordTTL is how long the per-alert processed record lives.
	ProcessedRecordTTL time.Duration `env:"DISPATCHER_PROCESSED_RECORD_TTL" envDefault:"24h"`

	// DashboardURL is the user-facing base URL embedded in acknowledgment links.
	DashboardURL string `env:"DASHBOARD_URL" envDefault:"http://localhost:3000"`
}

// Sanitize applies guardrails to dispatcher configuration values.
func (d *DispatcherConfig) Sanitize() {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.PollTimeout < time.Second {
		d.PollTimeout = time.Second
	}
	if d.ProcessedRecordTTL < time.Hour {
		d.ProcessedRecordTTL = time.Hour
	}
	d.DashboardURL = strings.TrimRight(strings.TrimSpace(d.DashboardURL), "/")
}

// ReNotifierConfig contains re-notifier configuration.
type ReNotifierConfig struct {
	// Interval is the re-notifier cycle interval.
	Interval time.Duration `env:"RENOTIFIER_INTERVAL" envDefault:"60s"`

	// BatchLimit caps how many due alerts one cycle picks up.
	BatchLimit int `env:"RENOTIFIER_BATCH_LIMIT" envDefault:"50"`

	// HourlyRepeatCap caps repeat notifications per job per hour.
	HourlyRepeatCap int `env:"RENOTIFIER_HOURLY_REPEAT_CAP" envDefault:"10"`

	// ErrorBudget is the number of consecutive per-alert failures a cycle
	// tolerates before aborting.
	ErrorBudget int `env:"RENOTIFIER_ERROR_BUDGET" envDefault:"3"`

	// BackoffBase is the base of the exponential backoff applied after a
	// failed alert within a cycle (base, 2*base, 4*base, ...).
	BackoffBase time.Duration `env:"RENOTIFIER_BACKOFF_BASE" envDefault:"2s"`
}

// Sanitize applies guardrails to re-notifier configuration values.
func (r *ReNotifierConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = time.Second
	}
	if r.BatchLimit < 1 {
		r.BatchLimit = 1
	}
	if r.HourlyRepeatCap < 1 {
		r.HourlyRepeatCap = 1
	}
	if r.ErrorBudget < 1 {
		r.ErrorBudget = 1
	}
	if r.BackoffBase < 100*time.Millisecond {
		r.BackoffBase = 100 * time.Millisecond
	}
}

// JanitorConfig contains janitor configuration.
type JanitorConfig struct {
	// Interval is the janitor tick interval.
	Interval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	// OrphanMinAge is the minimum age before a running run can be swept,
	// regardless of its job's frequency.
	OrphanMinAge time.Duration `env:"JANITOR_ORPHAN_MIN_AGE" envDefault:"30m"`

	// FailedTaskMaxAge is the retention window for failed task records.
	FailedTaskMaxAge time.Duration `env:"JANITOR_FAILED_TASK_MAX_AGE" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to janitor configuration values.
func (j *JanitorConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if j.Interval < time.Minute {
		j.Interval = time.Minute
	}
	if j.OrphanMinAge < 5*time.Minute {
		j.OrphanMinAge = 5 * time.Minute
	}
	if j.FailedTaskMaxAge < time.Hour {
		j.FailedTaskMaxAge = time.Hour
	}
}
