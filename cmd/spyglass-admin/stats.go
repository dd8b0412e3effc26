package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/util"
)

// Scheduler coordination key families surfaced by the queues command.
var lockKeyFamilies = []struct {
	label   string
	pattern string
}{
	{"job locks", "job_lock:*"},
	{"immediate run shields", "immediate_run_lock:*"},
	{"last run markers", "job_last_run:*"},
	{"processed run guards", "processed_alert:*"},
	{"cached job settings", "job_settings:*"},
}

func runQueues(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
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

	if err := printQueueDepths(ctx, redisClient); err != nil {
		return err
	}

	return printLockCounts(ctx, redisClient)
}

func printQueueDepths(ctx context.Context, client redis.UniversalClient) error {
	jobDepth, err := data.NewRedisJobQueue(client).Depth(ctx)
	if err != nil {
		return fmt.Errorf("job queue depth: %w", err)
	}
	alertDepth, err := data.NewRedisAlertQueue(client, time.Second).Depth(ctx)
	if err != nil {
		return fmt.Errorf("alert queue depth: %w", err)
	}

	if err := writef(os.Stdout, "\nQueue depths\n"); err != nil {
		return fmt.Errorf("write queue header: %w", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "QUEUE\tDEPTH"); err != nil {
		return fmt.Errorf("write queue table header: %w", err)
	}
	if err := writef(tw, "%s\t%d\n", data.JobQueueKey, jobDepth); err != nil {
		return fmt.Errorf("write job queue depth: %w", err)
	}
	if err := writef(tw, "%s\t%d\n", data.AlertQueueKey, alertDepth); err != nil {
		return fmt.Errorf("write alert queue depth: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush queue table: %w", err)
	}
	return nil
}

func printLockCounts(ctx context.Context, client redis.UniversalClient) error {
	if err := writef(os.Stdout, "\nScheduler coordination keys\n"); err != nil {
		return fmt.Errorf("write lock header: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "KEY FAMILY\tCOUNT"); err != nil {
		return fmt.Errorf("write lock table header: %w", err)
	}
	for _, family := range lockKeyFamilies {
		count, err := countKeys(ctx, client, family.pattern)
		if err != nil {
			return fmt.Errorf("count %s: %w", family.pattern, err)
		}
		if err := writef(tw, "%s\t%d\n", family.label, count); err != nil {
			return fmt.Errorf("write lock row %q: %w", family.label, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush lock table: %w", err)
	}
	return nil
}

func countKeys(ctx context.Context, client redis.UniversalClient, pattern string) (int, error) {
	iter := client.Scan(ctx, 0, pattern, 1000).Iterator()
	count := 0
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return count, nil
}

func runStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatsFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		since := time.Now().UTC().Add(-opts.Since)

		runStats, err := queryRunStats(ctx, db, since)
		if err != nil {
			return err
		}
		alertStats, err := queryAlertStats(ctx, db, since)
		if err != nil {
			return err
		}
		failureStats, err := queryFailureStats(ctx, db, since)
		if err != nil {
			return err
		}

		if err := printRunStats(os.Stdout, opts.Since, runStats); err != nil {
			return err
		}
		if err := printAlertStats(os.Stdout, alertStats); err != nil {
			return err
		}
		if err := printFailureStats(os.Stdout, failureStats); err != nil {
			return err
		}

		if opts.Limit > 0 {
			recent, err := queryRecentRuns(ctx, db, since, opts.Limit)
			if err != nil {
				return err
			}
			if err := printRecentRuns(os.Stdout, recent, opts.Limit); err != nil {
				return err
			}
		}
		return nil
	})
}

type runStatsSummary struct {
	Total            int64
	Completed        int64
	Failed           int64
	Running          int64
	SourcesProcessed int64
	AlertsGenerated  int64
	AvgDuration      time.Duration
}

func queryRunStats(ctx context.Context, db *sql.DB, since time.Time) (runStatsSummary, error) {
	const query = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COALESCE(SUM(sources_processed), 0),
			COALESCE(SUM(alerts_generated), 0),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) FILTER (WHERE completed_at IS NOT NULL), 0)
		FROM job_runs
		WHERE started_at >= $1`

	var s runStatsSummary
	var avgSeconds float64
	err := db.QueryRowContext(ctx, query, since).Scan(
		&s.Total,
		&s.Completed,
		&s.Failed,
		&s.Running,
		&s.SourcesProcessed,
		&s.AlertsGenerated,
		&avgSeconds,
	)
	if err != nil {
		return runStatsSummary{}, fmt.Errorf("query run stats: %w", err)
	}
	s.AvgDuration = time.Duration(avgSeconds * float64(time.Second))
	return s, nil
}

type alertStatsSummary struct {
	Total        int64
	Sent         int64
	Pending      int64
	Acknowledged int64
	AvgScore     float64
}

func queryAlertStats(ctx context.Context, db *sql.DB, since time.Time) (alertStatsSummary, error) {
	const query = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_sent),
			COUNT(*) FILTER (WHERE NOT is_sent),
			COUNT(*) FILTER (WHERE is_acknowledged),
			COALESCE(AVG(relevance_score), 0)
		FROM alerts
		WHERE created_at >= $1`

	var s alertStatsSummary
	err := db.QueryRowContext(ctx, query, since).Scan(
		&s.Total,
		&s.Sent,
		&s.Pending,
		&s.Acknowledged,
		&s.AvgScore,
	)
	if err != nil {
		return alertStatsSummary{}, fmt.Errorf("query alert stats: %w", err)
	}
	return s, nil
}

type failureStageCount struct {
	Stage string
	Count int64
}

type failureStatsSummary struct {
	Total  int64
	Stages []failureStageCount
}

func queryFailureStats(ctx context.Context, db *sql.DB, since time.Time) (failureStatsSummary, error) {
	var s failureStatsSummary
	if err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM failed_job_log WHERE created_at >= $1`,
		since,
	).Scan(&s.Total); err != nil {
		return failureStatsSummary{}, fmt.Errorf("count failures: %w", err)
	}
	if s.Total == 0 {
		return s, nil
	}

	rows, err := db.QueryContext(
		ctx,
		`SELECT stage, COUNT(*) FROM failed_job_log WHERE created_at >= $1 GROUP BY stage ORDER BY COUNT(*) DESC LIMIT 5`,
		since,
	)
	if err != nil {
		return failureStatsSummary{}, fmt.Errorf("group failures by stage: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var sc failureStageCount
		if scanErr := rows.Scan(&sc.Stage, &sc.Count); scanErr != nil {
			return failureStatsSummary{}, fmt.Errorf("scan failure stage: %w", scanErr)
		}
		s.Stages = append(s.Stages, sc)
	}
	if iterErr := rows.Err(); iterErr != nil {
		return failureStatsSummary{}, fmt.Errorf("iterate failure stages: %w", iterErr)
	}
	return s, nil
}

type recentRunRow struct {
	RunID            string
	JobName          string
	Status           string
	StartedAt        time.Time
	CompletedAt      sql.NullTime
	SourcesProcessed int
	AlertsGenerated  int
}

func queryRecentRuns(ctx context.Context, db *sql.DB, since time.Time, limit int) ([]recentRunRow, error) {
	const query = `
		SELECT r.run_id, COALESCE(j.name, '(deleted)'), r.status, r.started_at, r.completed_at,
			r.sources_processed, r.alerts_generated
		FROM job_runs r
		LEFT JOIN jobs j ON j.id = r.job_id
		WHERE r.started_at >= $1
		ORDER BY r.started_at DESC
		LIMIT $2`

	rows, err := db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]recentRunRow, 0, limit)
	for rows.Next() {
		var row recentRunRow
		if scanErr := rows.Scan(
			&row.RunID,
			&row.JobName,
			&row.Status,
			&row.StartedAt,
			&row.CompletedAt,
			&row.SourcesProcessed,
			&row.AlertsGenerated,
		); scanErr != nil {
			return nil, fmt.Errorf("scan recent run: %w", scanErr)
		}
		out = append(out, row)
	}
	if iterErr := rows.Err(); iterErr != nil {
		return nil, fmt.Errorf("list recent runs rows: %w", iterErr)
	}
	return out, nil
}

func printRunStats(w io.Writer, window time.Duration, s runStatsSummary) error {
	if err := writef(w, "\nJob runs (last %s)\n", window); err != nil {
		return fmt.Errorf("write run stats header: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Metric\tValue"); err != nil {
		return fmt.Errorf("write run stats table header: %w", err)
	}
	if err := writef(tw, "Total Runs\t%d\n", s.Total); err != nil {
		return fmt.Errorf("write total runs: %w", err)
	}
	if err := writef(tw, "Completed\t%d\n", s.Completed); err != nil {
		return fmt.Errorf("write completed runs: %w", err)
	}
	if err := writef(tw, "Failed\t%d\n", s.Failed); err != nil {
		return fmt.Errorf("write failed runs: %w", err)
	}
	if err := writef(tw, "Still Running\t%d\n", s.Running); err != nil {
		return fmt.Errorf("write running runs: %w", err)
	}
	if err := writef(tw, "Sources Processed\t%d\n", s.SourcesProcessed); err != nil {
		return fmt.Errorf("write sources processed: %w", err)
	}
	if err := writef(tw, "Alerts Generated\t%d\n", s.AlertsGenerated); err != nil {
		return fmt.Errorf("write alerts generated: %w", err)
	}
	if err := writef(tw, "Avg Run Duration\t%s\n", util.FormatProcessingDuration(s.AvgDuration)); err != nil {
		return fmt.Errorf("write avg duration: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush run stats: %w", err)
	}
	return nil
}

func printAlertStats(w io.Writer, s alertStatsSummary) error {
	if err := writef(w, "\nAlerts\n"); err != nil {
		return fmt.Errorf("write alert stats header: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Metric\tValue"); err != nil {
		return fmt.Errorf("write alert stats table header: %w", err)
	}
	if err := writef(tw, "Total Alerts\t%d\n", s.Total); err != nil {
		return fmt.Errorf("write total alerts: %w", err)
	}
	if err := writef(tw, "Sent\t%d\n", s.Sent); err != nil {
		return fmt.Errorf("write sent alerts: %w", err)
	}
	if err := writef(tw, "Pending Dispatch\t%d\n", s.Pending); err != nil {
		return fmt.Errorf("write pending alerts: %w", err)
	}
	if err := writef(tw, "Acknowledged\t%d\n", s.Acknowledged); err != nil {
		return fmt.Errorf("write acknowledged alerts: %w", err)
	}
	if err := writef(tw, "Avg Relevance Score\t%.1f\n", s.AvgScore); err != nil {
		return fmt.Errorf("write avg score: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush alert stats: %w", err)
	}
	return nil
}

func printFailureStats(w io.Writer, s failureStatsSummary) error {
	if err := writef(w, "\nPipeline failures\n"); err != nil {
		return fmt.Errorf("write failure stats header: %w", err)
	}
	if s.Total == 0 {
		if err := writeln(w, "  (none recorded)"); err != nil {
			return fmt.Errorf("write failure stats empty: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "Stage\tCount"); err != nil {
		return fmt.Errorf("write failure stats table header: %w", err)
	}
	for _, sc := range s.Stages {
		stage := sc.Stage
		if stage == "" {
			stage = "(unknown)"
		}
		if err := writef(tw, "%s\t%d\n", stage, sc.Count); err != nil {
			return fmt.Errorf("write failure stage row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush failure stats: %w", err)
	}
	if err := writef(w, "Total failures: %d\n", s.Total); err != nil {
		return fmt.Errorf("write failure total: %w", err)
	}
	return nil
}

func printRecentRuns(w io.Writer, rows []recentRunRow, limit int) error {
	if err := writef(w, "\nRecent runs (up to %d)\n", limit); err != nil {
		return fmt.Errorf("write recent runs header: %w", err)
	}
	if len(rows) == 0 {
		if err := writeln(w, "  (no runs found)"); err != nil {
			return fmt.Errorf("write recent runs empty: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "RUN ID\tJOB\tSTATUS\tSTARTED (UTC)\tDURATION\tSOURCES\tALERTS"); err != nil {
		return fmt.Errorf("write recent runs table header: %w", err)
	}
	for _, row := range rows {
		duration := "—"
		if row.CompletedAt.Valid {
			duration = util.FormatProcessingDuration(row.CompletedAt.Time.Sub(row.StartedAt))
		}
		if err := writef(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			row.RunID,
			row.JobName,
			row.Status,
			formatTimestamp(row.StartedAt),
			duration,
			row.SourcesProcessed,
			row.AlertsGenerated,
		); err != nil {
			return fmt.Errorf("write recent run row: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush recent runs: %w", err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatRedisTTL(ttl time.Duration) string {
	if ttl == -1 {
		return "no expiry"
	}
	if ttl == -2 {
		return "missing"
	}
	if ttl < 0 {
		return ttl.String()
	}
	return ttl.Round(time.Millisecond).String()
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
