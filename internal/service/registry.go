package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// JobSettingsKey returns the cache key holding one job's serialized settings.
func JobSettingsKey(jobID string) string {
	return "job_settings:" + jobID
}

// RegistryServiceOptions groups dependencies for RegistryService.
type RegistryServiceOptions struct {
	Jobs   core.JobsRepository   // Required: jobs repository
	KV     core.KV               // Required: key-value store backing the settings cache
	Config config.RegistryConfig // Registry configuration
	Logger *slog.Logger          // Optional: structured logger
}

// RegistryService resolves job definitions through a short-lived settings
// cache so a burst of tasks for one job hits the database once. Listings
// always go straight to the database; only per-job lookups are cached.
type RegistryService struct {
	jobs   core.JobsRepository
	kv     core.KV
	config config.RegistryConfig
	logger *slog.Logger
}

var _ core.JobRegistry = (*RegistryService)(nil)

// NewRegistryService constructs a new RegistryService.
func NewRegistryService(opts RegistryServiceOptions) (*RegistryService, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobsRepository is required")
	}
	if opts.KV == nil {
		return nil, errors.New("KV store is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RegistryService{
		jobs:   opts.Jobs,
		kv:     opts.KV,
		config: cfg,
		logger: logger.With("component", "registry_service"),
	}, nil
}

// Job returns the job definition, serving from cache when a fresh entry
// exists. Cache failures degrade to database reads; a corrupt cache entry is
// overwritten on the next successful load.
func (s *RegistryService) Job(ctx context.Context, jobID string) (*model.Job, error) {
	if cached := s.cachedJob(ctx, jobID); cached != nil {
		return cached, nil
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	s.cacheJob(ctx, job)
	return job, nil
}

// ListActiveJobs returns every active job straight from the database so new
// and deactivated jobs take effect on the next scheduler tick.
func (s *RegistryService) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	jobs, err := s.jobs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	return jobs, nil
}

// Invalidate drops the cached settings entry for the job.
func (s *RegistryService) Invalidate(ctx context.Context, jobID string) error {
	if _, err := s.kv.Delete(ctx, JobSettingsKey(jobID)); err != nil {
		return fmt.Errorf("invalidate job settings %s: %w", jobID, err)
	}
	return nil
}

func (s *RegistryService) cachedJob(ctx context.Context, jobID string) *model.Job {
	raw, err := s.kv.Get(ctx, JobSettingsKey(jobID))
	if err != nil {
		s.logger.WarnContext(ctx, "job settings cache read failed, falling back to database",
			"job_id", jobID,
			"error", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var job model.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		s.logger.WarnContext(ctx, "job settings cache entry corrupt, falling back to database",
			"job_id", jobID,
			"error", err)
		return nil
	}

	return &job
}

func (s *RegistryService) cacheJob(ctx context.Context, job *model.Job) {
	raw, err := json.Marshal(job)
	if err != nil {
		s.logger.WarnContext(ctx, "job settings cache encode failed",
			"job_id", job.ID,
			"error", err)
		return
	}

	if err := s.kv.Set(ctx, JobSettingsKey(job.ID), raw, s.config.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "job settings cache write failed",
			"job_id", job.ID,
			"error", err)
	}
}
