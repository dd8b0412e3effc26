package service

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

// Suppression windows are hour-bucketed; the keys carry the bucket so the
// counter resets naturally at the top of each hour. The TTL only has to
// outlive the bucket.
const suppressionWindowTTL = time.Hour

// fingerprintLength is how many hex digits of the content hash feed the
// cooldown key.
const fingerprintLength = 16

// AlertCooldownKey returns the key marking recently alerted content for a job.
func AlertCooldownKey(jobID, fingerprint string) string {
	return "alert_cooldown:" + jobID + ":" + fingerprint
}

// AlertRateLimitKey returns the hourly alert counter key for a job.
func AlertRateLimitKey(jobID, window string) string {
	return "alert_rate_limit:" + jobID + ":" + window
}

// ContentDedupKey returns the key marking an already-committed
// (job, source, hour) alert.
func ContentDedupKey(jobID, sourceURL, window string) string {
	return "content_dedup:" + jobID + ":" + sourceURL + ":" + window
}

// HourWindow formats the UTC hour bucket used by suppression keys.
func HourWindow(t time.Time) string {
	return t.UTC().Format("2006-01-02-15")
}

// ContentFingerprint condenses an alert summary into the short hash used by
// cooldown keys.
func ContentFingerprint(summary string) string {
	sum := md5.Sum([]byte(summary)) //nolint:gosec // content fingerprint, not a security boundary
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}

// PolicyServiceOptions groups dependencies for PolicyService.
type PolicyServiceOptions struct {
	KV     core.KV      // Required: key-value store holding suppression state
	Logger *slog.Logger // Optional: structured logger
}

// PolicyService decides whether a candidate alert may be committed. Checks
// run in a fixed order (cooldown, hourly rate, content dedup) so an alert
// suppressed for several reasons always reports the first one.
type PolicyService struct {
	kv     core.KV
	logger *slog.Logger
}

var _ core.PolicyEngine = (*PolicyService)(nil)

// NewPolicyService constructs a new PolicyService.
func NewPolicyService(opts PolicyServiceOptions) (*PolicyService, error) {
	if opts.KV == nil {
		return nil, errors.New("KV store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PolicyService{
		kv:     opts.KV,
		logger: logger.With("component", "policy_service"),
	}, nil
}

// Evaluate runs the suppression checks for an alert candidate. It only
// reads; RecordCreated arms the state once the alert actually commits.
func (s *PolicyService) Evaluate(ctx context.Context, check core.PolicyCheck) (model.PolicyDecision, error) {
	onCooldown, err := s.onCooldown(ctx, check)
	if err != nil {
		return "", err
	}
	if onCooldown {
		return model.PolicySuppressCooldown, nil
	}

	overRate, err := s.overHourlyRate(ctx, check)
	if err != nil {
		return "", err
	}
	if overRate {
		return model.PolicySuppressRate, nil
	}

	owner, err := s.DedupOwner(ctx, check.JobID, check.SourceURL, check.Now)
	if err != nil {
		return "", err
	}
	if owner != "" {
		return model.PolicySuppressDuplicate, nil
	}

	return model.PolicyAllow, nil
}

// RecordCreated arms the suppression state for a committed alert: the
// cooldown fingerprint, the hourly counter, and the dedup marker carrying
// the alert's id. Each arm is attempted even when an earlier one fails so a
// single KV hiccup degrades as little suppression as possible.
func (s *PolicyService) RecordCreated(ctx context.Context, check core.PolicyCheck, alertID string) error {
	var errs []error

	if check.Policy.AlertCooldownMinutes > 0 {
		key := AlertCooldownKey(check.JobID, ContentFingerprint(check.Summary))
		ttl := time.Duration(check.Policy.AlertCooldownMinutes) * time.Minute
		if err := s.kv.Set(ctx, key, []byte("1"), ttl); err != nil {
			errs = append(errs, fmt.Errorf("arm cooldown: %w", err))
		}
	}

	rateKey := AlertRateLimitKey(check.JobID, HourWindow(check.Now))
	if _, err := s.kv.IncrementWithTTL(ctx, rateKey, suppressionWindowTTL); err != nil {
		errs = append(errs, fmt.Errorf("bump hourly counter: %w", err))
	}

	dedupKey := ContentDedupKey(check.JobID, check.SourceURL, HourWindow(check.Now))
	claimed, err := s.kv.SetIfNotExists(ctx, dedupKey, []byte(alertID), suppressionWindowTTL)
	if err != nil {
		errs = append(errs, fmt.Errorf("arm dedup marker: %w", err))
	} else if !claimed {
		// A racing worker committed first for this (job, source, hour).
		// The dispatcher resolves the winner through DedupOwner.
		s.logger.DebugContext(ctx, "dedup marker already claimed",
			"job_id", check.JobID,
			"source_url", check.SourceURL,
			"alert_id", alertID)
	}

	if len(errs) > 0 {
		return fmt.Errorf("record created alert %s: %w", alertID, errors.Join(errs...))
	}
	return nil
}

// DedupOwner returns the alert id holding the dedup marker for the given
// job, source, and instant, or "" when no marker is set.
func (s *PolicyService) DedupOwner(ctx context.Context, jobID, sourceURL string, at time.Time) (string, error) {
	raw, err := s.kv.Get(ctx, ContentDedupKey(jobID, sourceURL, HourWindow(at)))
	if err != nil {
		return "", fmt.Errorf("read dedup marker: %w", err)
	}
	return string(raw), nil
}

func (s *PolicyService) onCooldown(ctx context.Context, check core.PolicyCheck) (bool, error) {
	if check.Policy.AlertCooldownMinutes <= 0 {
		return false, nil
	}

	key := AlertCooldownKey(check.JobID, ContentFingerprint(check.Summary))
	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read cooldown marker: %w", err)
	}
	return exists, nil
}

func (s *PolicyService) overHourlyRate(ctx context.Context, check core.PolicyCheck) (bool, error) {
	if check.Policy.MaxAlertsPerHour <= 0 {
		return false, nil
	}

	raw, err := s.kv.Get(ctx, AlertRateLimitKey(check.JobID, HourWindow(check.Now)))
	if err != nil {
		return false, fmt.Errorf("read hourly counter: %w", err)
	}
	if raw == nil {
		return false, nil
	}

	count, err := strconv.Atoi(string(raw))
	if err != nil {
		s.logger.WarnContext(ctx, "unparseable hourly counter, treating as zero",
			"job_id", check.JobID,
			"value", string(raw))
		return false, nil
	}

	return count >= check.Policy.MaxAlertsPerHour, nil
}
