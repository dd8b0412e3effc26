package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
)

// policyKeyKind names one family of alert suppression keys.
type policyKeyKind string

const (
	policyKindCooldown  policyKeyKind = "cooldown"
	policyKindRateLimit policyKeyKind = "rate-limit"
	policyKindDedup     policyKeyKind = "dedup"
	policyKindRepeat    policyKeyKind = "repeat"
	policyKindAll       policyKeyKind = "all"
)

// Redis key prefixes per suppression family. The job id is always the first
// segment after the prefix.
const (
	cooldownKeyPrefix  = "alert_cooldown:"
	rateLimitKeyPrefix = "alert_rate_limit:"
	dedupKeyPrefix     = "content_dedup:"
	repeatKeyPrefix    = "repeat_rate_limit:"
)

func parsePolicyKind(raw string) (policyKeyKind, error) {
	kind := policyKeyKind(strings.ToLower(strings.TrimSpace(raw)))
	switch kind {
	case policyKindCooldown, policyKindRateLimit, policyKindDedup, policyKindRepeat, policyKindAll:
		return kind, nil
	case "":
		return policyKindAll, nil
	default:
		return "", fmt.Errorf("invalid --kind %q (valid: cooldown, rate-limit, dedup, repeat, all)", raw)
	}
}

func (k policyKeyKind) prefixes() map[policyKeyKind]string {
	all := map[policyKeyKind]string{
		policyKindCooldown:  cooldownKeyPrefix,
		policyKindRateLimit: rateLimitKeyPrefix,
		policyKindDedup:     dedupKeyPrefix,
		policyKindRepeat:    repeatKeyPrefix,
	}
	if k == policyKindAll {
		return all
	}
	if prefix, ok := all[k]; ok {
		return map[policyKeyKind]string{k: prefix}
	}
	return nil
}

type policyListOptions struct {
	JobID string
	Kind  policyKeyKind
	Limit int
}

type policyClearOptions struct {
	JobID  string
	Kind   policyKeyKind
	All    bool
	DryRun bool
	Yes    bool
}

func parsePolicyListFlags(args []string) (policyListOptions, error) {
	fs := flag.NewFlagSet("list-policy-keys", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts policyListOptions
	var rawKind string
	fs.StringVar(&opts.JobID, "job-id", "", "Filter by job ID (default: all jobs)")
	fs.StringVar(&rawKind, "kind", "all", "Key family to inspect: cooldown, rate-limit, dedup, repeat, all")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum keys to display (0 for unlimited)")

	if err := fs.Parse(args); err != nil {
		return policyListOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)
	if opts.Limit < 0 {
		return policyListOptions{}, errors.New("--limit must be >= 0")
	}

	kind, err := parsePolicyKind(rawKind)
	if err != nil {
		return policyListOptions{}, err
	}
	opts.Kind = kind

	return opts, nil
}

func parsePolicyClearFlags(args []string) (policyClearOptions, error) {
	fs := flag.NewFlagSet("clear-policy-keys", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts policyClearOptions
	var rawKind string
	fs.StringVar(&opts.JobID, "job-id", "", "Job ID to clear (required unless --all)")
	fs.StringVar(&rawKind, "kind", "all", "Key family to clear: cooldown, rate-limit, dedup, repeat, all")
	fs.BoolVar(&opts.All, "all", false, "Clear suppression keys for all jobs")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return policyClearOptions{}, err
	}

	opts.JobID = strings.TrimSpace(opts.JobID)

	kind, err := parsePolicyKind(rawKind)
	if err != nil {
		return policyClearOptions{}, err
	}
	opts.Kind = kind

	if opts.All {
		if opts.JobID != "" {
			return policyClearOptions{}, errors.New("--all cannot be combined with --job-id")
		}
		return opts, nil
	}
	if opts.JobID == "" {
		return policyClearOptions{}, errors.New("--job-id is required unless --all is provided")
	}

	return opts, nil
}

func runListPolicyKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parsePolicyListFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	resp, err := inspectPolicyKeys(&inspectPolicyKeysRequest{
		Ctx:     ctx,
		Client:  redisClient,
		Logger:  cmdCtx.Logger,
		Options: &opts,
	})
	if err != nil {
		return err
	}

	return printPolicyKeyEntries(resp, &opts)
}

func runClearPolicyKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parsePolicyClearFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirmAction(policyClearConfirmOptions{opts}, "clear alert suppression keys"); confirmErr != nil {
		return confirmErr
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	stats, err := deletePolicyKeys(&policyDeleteRequest{
		Ctx:      ctx,
		Logger:   cmdCtx.Logger,
		Redis:    redisClient,
		Options:  opts,
		BatchCap: 1000,
	})
	if err != nil {
		return err
	}

	if stats.total == 0 {
		if writeErr := writeln(os.Stdout, "No suppression keys found in Redis"); writeErr != nil {
			return fmt.Errorf("print policy clear summary: %w", writeErr)
		}
		return nil
	}

	if opts.DryRun {
		if writeErr := writef(os.Stdout, "Dry-run: would delete %d/%d keys\n", stats.deleted, stats.total); writeErr != nil {
			return fmt.Errorf("print policy dry run: %w", writeErr)
		}
		return nil
	}

	if writeErr := writef(os.Stdout, "Deleted %d/%d suppression keys\n", stats.deleted, stats.total); writeErr != nil {
		return fmt.Errorf("print policy deleted: %w", writeErr)
	}
	if stats.failures > 0 {
		if writeErr := writef(os.Stdout, "Failed batches: %d\n", stats.failures); writeErr != nil {
			return fmt.Errorf("print policy failures: %w", writeErr)
		}
	}
	return nil
}

type policyClearConfirmOptions struct {
	opts policyClearOptions
}

func (p policyClearConfirmOptions) IsDryRun() bool { return p.opts.DryRun }
func (p policyClearConfirmOptions) IsYes() bool    { return p.opts.Yes }
func (p policyClearConfirmOptions) GetWarning() string {
	return "WARNING: this will remove alert suppression keys for every job; suppressed alerts may fire again."
}

func (p policyClearConfirmOptions) GetTarget() string {
	if p.opts.All {
		return ""
	}
	target := fmt.Sprintf("job %q", p.opts.JobID)
	if p.opts.Kind != policyKindAll {
		target += fmt.Sprintf(", kind %q", p.opts.Kind)
	}
	return target
}

type policyPattern struct {
	kind    policyKeyKind
	pattern string
}

func buildPolicyPatterns(kind policyKeyKind, jobID string) []policyPattern {
	prefixes := kind.prefixes()
	if len(prefixes) == 0 {
		return nil
	}

	jobPart := "*"
	if jobID != "" {
		jobPart = jobID
	}

	patterns := make([]policyPattern, 0, len(prefixes))
	for k, prefix := range prefixes {
		patterns = append(patterns, policyPattern{kind: k, pattern: prefix + jobPart + ":*"})
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].kind < patterns[j].kind })
	return patterns
}

var errUnexpectedPolicyKeyFormat = errors.New("unexpected suppression key format")

// parsePolicyKey splits a suppression key into (jobID, detail). The detail is
// the fingerprint, hour window, or source+window depending on the family;
// content_dedup details keep their embedded colons intact.
func parsePolicyKey(key string) (string, string, error) {
	rest := key
	for _, prefix := range []string{cooldownKeyPrefix, rateLimitKeyPrefix, dedupKeyPrefix, repeatKeyPrefix} {
		if strings.HasPrefix(key, prefix) {
			rest = strings.TrimPrefix(key, prefix)
			parts := strings.SplitN(rest, ":", 2)
			if len(parts) != 2 || parts[0] == "" {
				return "", "", errUnexpectedPolicyKeyFormat
			}
			return parts[0], parts[1], nil
		}
	}
	return "", "", errUnexpectedPolicyKeyFormat
}

type inspectPolicyKeysRequest struct {
	Ctx     context.Context
	Client  redis.UniversalClient
	Logger  *slog.Logger
	Options *policyListOptions
}

type policyKeyEntry struct {
	Kind   policyKeyKind
	JobID  string
	Detail string
	TTL    time.Duration
	Key    string
}

type inspectPolicyKeysResponse struct {
	Entries []policyKeyEntry
	Total   int
}

func inspectPolicyKeys(req *inspectPolicyKeysRequest) (inspectPolicyKeysResponse, error) {
	if req == nil || req.Options == nil {
		return inspectPolicyKeysResponse{}, nil
	}
	patterns := buildPolicyPatterns(req.Options.Kind, req.Options.JobID)
	if len(patterns) == 0 {
		return inspectPolicyKeysResponse{}, nil
	}

	collector := policyKeyCollector{limit: req.Options.Limit}
	for _, p := range patterns {
		if req.Logger != nil {
			req.Logger.Info("scanning redis", "pattern", p.pattern)
		}
		if err := collector.scanPattern(req, p); err != nil {
			return inspectPolicyKeysResponse{}, err
		}
	}
	return collector.result(), nil
}

type policyKeyCollector struct {
	entries []policyKeyEntry
	total   int
	limit   int
}

func (c *policyKeyCollector) scanPattern(req *inspectPolicyKeysRequest, p policyPattern) error {
	if req == nil {
		return errors.New("inspect policy request is required")
	}
	iter := req.Client.Scan(req.Ctx, 0, p.pattern, 1000).Iterator()
	for iter.Next(req.Ctx) {
		if err := c.addKey(req, p.kind, iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *policyKeyCollector) addKey(req *inspectPolicyKeysRequest, kind policyKeyKind, key string) error {
	if req == nil {
		return nil
	}
	c.total++
	if c.limit > 0 && len(c.entries) >= c.limit {
		return nil
	}

	jobID, detail, err := parsePolicyKey(key)
	if err != nil {
		if req.Logger != nil {
			req.Logger.Warn("skipping suppression key", "key", key, "error", err)
		}
		return nil
	}

	ttl, err := req.Client.TTL(req.Ctx, key).Result()
	if err != nil {
		return fmt.Errorf("query redis ttl for key %q: %w", key, err)
	}

	c.entries = append(c.entries, policyKeyEntry{
		Kind:   kind,
		JobID:  jobID,
		Detail: detail,
		TTL:    ttl,
		Key:    key,
	})
	return nil
}

func (c *policyKeyCollector) result() inspectPolicyKeysResponse {
	sort.Slice(c.entries, func(i, j int) bool {
		if c.entries[i].Kind == c.entries[j].Kind {
			if c.entries[i].JobID == c.entries[j].JobID {
				return c.entries[i].Detail < c.entries[j].Detail
			}
			return c.entries[i].JobID < c.entries[j].JobID
		}
		return c.entries[i].Kind < c.entries[j].Kind
	})
	return inspectPolicyKeysResponse{
		Entries: c.entries,
		Total:   c.total,
	}
}

func printPolicyKeyEntries(resp inspectPolicyKeysResponse, opts *policyListOptions) error {
	if opts == nil {
		return errors.New("list options are required")
	}
	displayLimit := max(opts.Limit, 0)
	if err := writef(os.Stdout, "\nAlert suppression keys"); err != nil {
		return fmt.Errorf("write policy keys header: %w", err)
	}
	if displayLimit > 0 {
		if err := writef(os.Stdout, " (showing up to %d)", displayLimit); err != nil {
			return fmt.Errorf("write policy keys limit: %w", err)
		}
	}
	if err := writeln(os.Stdout); err != nil {
		return fmt.Errorf("write policy keys header newline: %w", err)
	}

	if len(resp.Entries) == 0 {
		if err := writeln(os.Stdout, "  (no keys matched)"); err != nil {
			return fmt.Errorf("write policy keys empty message: %w", err)
		}
		return nil
	}

	if err := renderPolicyKeyTable(resp.Entries); err != nil {
		return err
	}

	if err := writef(os.Stdout, "Total keys matched: %d\n", resp.Total); err != nil {
		return fmt.Errorf("write policy keys total: %w", err)
	}
	if opts.Limit > 0 && resp.Total > len(resp.Entries) {
		if err := writeln(os.Stdout, "More keys available; increase --limit to view additional entries."); err != nil {
			return fmt.Errorf("write policy keys more-keys message: %w", err)
		}
	}
	return nil
}

func renderPolicyKeyTable(entries []policyKeyEntry) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "KIND\tJOB ID\tDETAIL\tTTL\tKEY"); err != nil {
		return fmt.Errorf("write policy keys header row: %w", err)
	}

	for _, entry := range entries {
		detail := entry.Detail
		if detail == "" {
			detail = "-"
		}
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\n",
			entry.Kind,
			entry.JobID,
			detail,
			formatRedisTTL(entry.TTL),
			entry.Key,
		); err != nil {
			return fmt.Errorf("write policy key entry: %w", err)
		}
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush policy key table: %w", err)
	}
	return nil
}

type policyDeleteRequest struct {
	Ctx      context.Context
	Logger   *slog.Logger
	Redis    redis.UniversalClient
	Options  policyClearOptions
	BatchCap int
}

type policyDeleteStats struct {
	total    int
	deleted  int64
	failures int
}

func deletePolicyKeys(req *policyDeleteRequest) (policyDeleteStats, error) {
	patterns := buildPolicyPatterns(req.Options.Kind, req.Options.JobID)
	if len(patterns) == 0 {
		return policyDeleteStats{}, nil
	}

	batchCap := req.BatchCap
	if batchCap <= 0 {
		batchCap = 1000
	}

	stats := policyDeleteStats{}
	for _, p := range patterns {
		if err := req.deletePolicyKeysForPattern(p.pattern, &stats, batchCap); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (req *policyDeleteRequest) deletePolicyKeysForPattern(
	pattern string,
	stats *policyDeleteStats,
	batchCap int,
) error {
	if req.Logger != nil {
		req.Logger.Info("scanning redis", "pattern", pattern, "dry_run", req.Options.DryRun)
	}

	iter := req.Redis.Scan(req.Ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)

	for iter.Next(req.Ctx) {
		stats.total++
		batch = append(batch, iter.Val())

		if len(batch) == batchCap {
			flushPolicyBatch(req, batch, stats)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}

	flushPolicyBatch(req, batch, stats)
	return nil
}

func flushPolicyBatch(req *policyDeleteRequest, batch []string, stats *policyDeleteStats) {
	if len(batch) == 0 {
		return
	}
	if req.Options.DryRun {
		stats.deleted += int64(len(batch))
		if req.Logger != nil {
			req.Logger.Info("dry-run skipping suppression key delete", "count", len(batch))
		}
		return
	}
	n, delErr := req.Redis.Del(req.Ctx, batch...).Result()
	if delErr != nil {
		stats.failures++
		if req.Logger != nil {
			req.Logger.Error(
				"failed to delete suppression keys",
				"count",
				len(batch),
				"error",
				delErr,
			)
		}
		return
	}
	stats.deleted += n
}
