package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAlertRequestValidate(t *testing.T) {
	valid := CreateAlertRequest{
		JobID:          "job-1",
		RunID:          "run_job-1_1700000000",
		SourceURL:      "https://a.test/x",
		Title:          "Q3 beat",
		Content:        "Revenue up 12%",
		RelevanceScore: 82,
	}

	t.Run("valid request", func(t *testing.T) {
		req := valid
		req.Normalize()
		require.NoError(t, req.Validate())
	})

	t.Run("missing job id", func(t *testing.T) {
		req := valid
		req.JobID = "  "
		req.Normalize()
		assert.Error(t, req.Validate())
	})

	t.Run("missing title", func(t *testing.T) {
		req := valid
		req.Title = ""
		assert.Error(t, req.Validate())
	})

	t.Run("title too long", func(t *testing.T) {
		req := valid
		req.Title = strings.Repeat("x", 256)
		assert.Error(t, req.Validate())
	})

	t.Run("score out of range", func(t *testing.T) {
		req := valid
		req.RelevanceScore = 101
		assert.Error(t, req.Validate())

		req.RelevanceScore = -1
		assert.Error(t, req.Validate())
	})
}

func TestAlertPayloadValidate(t *testing.T) {
	p := AlertPayload{
		AlertID:        "a-1",
		JobID:          "job-1",
		RunID:          "run_job-1_1700000000",
		SourceURL:      "https://a.test/x",
		Title:          "Q3 beat",
		Content:        "Revenue up 12%",
		RelevanceScore: 82,
		Timestamp:      time.Now(),
	}
	require.NoError(t, p.Validate())
	assert.False(t, p.IsRepeat())

	p.RepeatOrdinal = 2
	assert.True(t, p.IsRepeat())

	p.AlertID = ""
	assert.Error(t, p.Validate())
}

func TestNewRunID(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "run_job-1_1700000000", NewRunID("job-1", at))
}

func TestTrimAnalysisSummary(t *testing.T) {
	entries := make([]AnalysisEntry, 0, 14)
	for i := 0; i < 14; i++ {
		entries = append(entries, AnalysisEntry{SourceURL: string(rune('a' + i))})
	}

	trimmed := TrimAnalysisSummary(entries)
	require.Len(t, trimmed, AnalysisSummaryLimit)
	// Newest entries survive.
	assert.Equal(t, "e", trimmed[0].SourceURL)
	assert.Equal(t, "n", trimmed[len(trimmed)-1].SourceURL)

	short := entries[:3]
	assert.Equal(t, short, TrimAnalysisSummary(short))
}
