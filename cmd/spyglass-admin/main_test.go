package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/config"
)

func TestPrintPolicyKeyEntriesRendersTable(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w

	resp := inspectPolicyKeysResponse{
		Entries: []policyKeyEntry{
			{
				Kind:   policyKindCooldown,
				JobID:  "job-1",
				Detail: "9f86d081884c7d65",
				TTL:    90 * time.Second,
				Key:    "alert_cooldown:job-1:9f86d081884c7d65",
			},
			{
				Kind:   policyKindDedup,
				JobID:  "job-1",
				Detail: "https://example.com/news:2026-01-02-15",
				TTL:    -1,
				Key:    "content_dedup:job-1:https://example.com/news:2026-01-02-15",
			},
		},
		Total: 5,
	}
	err = printPolicyKeyEntries(resp, &policyListOptions{Kind: policyKindAll, Limit: 2})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Contains(t, outStr, "KIND")
	require.Contains(t, outStr, "alert_cooldown:job-1:9f86d081884c7d65")
	require.Contains(t, outStr, "no expiry")
	require.Contains(t, outStr, "Total keys matched: 5")
	require.Contains(t, outStr, "More keys available")
}

func TestParsePolicyKeySplitsJobAndDetail(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		wantJobID  string
		wantDetail string
		wantErr    bool
	}{
		{
			name:       "cooldown fingerprint",
			key:        "alert_cooldown:job-1:9f86d081884c7d65",
			wantJobID:  "job-1",
			wantDetail: "9f86d081884c7d65",
		},
		{
			name:       "dedup detail keeps embedded colons",
			key:        "content_dedup:job-1:https://example.com/news:2026-01-02-15",
			wantJobID:  "job-1",
			wantDetail: "https://example.com/news:2026-01-02-15",
		},
		{
			name:       "rate limit hour window",
			key:        "alert_rate_limit:job-2:2026-01-02-15",
			wantJobID:  "job-2",
			wantDetail: "2026-01-02-15",
		},
		{
			name:    "unknown prefix",
			key:     "job_lock:job-1",
			wantErr: true,
		},
		{
			name:    "missing detail segment",
			key:     "alert_cooldown:job-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobID, detail, err := parsePolicyKey(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, errUnexpectedPolicyKeyFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantJobID, jobID)
			require.Equal(t, tt.wantDetail, detail)
		})
	}
}

func TestParsePolicyClearFlagsValidation(t *testing.T) {
	_, err := parsePolicyClearFlags([]string{"--all", "--job-id", "job-1"})
	require.ErrorContains(t, err, "--all cannot be combined with --job-id")

	_, err = parsePolicyClearFlags([]string{"--kind", "cooldown"})
	require.ErrorContains(t, err, "--job-id is required")

	opts, err := parsePolicyClearFlags([]string{"--job-id", "job-1", "--kind", "dedup", "--dry-run"})
	require.NoError(t, err)
	require.Equal(t, "job-1", opts.JobID)
	require.Equal(t, policyKindDedup, opts.Kind)
	require.True(t, opts.DryRun)
}

func TestParseStatsFlagsDefaults(t *testing.T) {
	opts, err := parseStatsFlags(nil)
	require.NoError(t, err)
	require.Equal(t, 24*time.Hour, opts.Since)
	require.Equal(t, 10, opts.Limit)

	_, err = parseStatsFlags([]string{"--since", "-1h"})
	require.Error(t, err)
}

func TestFormatRedisTTL(t *testing.T) {
	require.Equal(t, "no expiry", formatRedisTTL(-1))
	require.Equal(t, "missing", formatRedisTTL(-2))
	require.Equal(t, "1.5s", formatRedisTTL(1500*time.Millisecond))
}

func TestHasRedisConfig(t *testing.T) {
	require.False(t, hasRedisConfig(nil))
	require.False(t, hasRedisConfig(&config.RedisConfig{}))
	require.True(t, hasRedisConfig(&config.RedisConfig{URI: "redis://localhost:6379"}))
	require.True(t, hasRedisConfig(&config.RedisConfig{UseCluster: true, ClusterNodes: []string{"localhost:7000"}}))
	require.False(t, hasRedisConfig(&config.RedisConfig{UseSentinel: true}))
	require.True(t, hasRedisConfig(&config.RedisConfig{
		UseSentinel:   true,
		SentinelNodes: []string{"localhost:26379"},
	}))
}
