package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglasshq/spyglass/config"
	"github.com/spyglasshq/spyglass/internal/core"
	"github.com/spyglasshq/spyglass/internal/data"
	"github.com/spyglasshq/spyglass/internal/domain/model"
)

type mockChannelsRepo struct {
	mu sync.Mutex

	listCalled int
	lastUserID string
	lastIDs    []string
	channels   []model.NotificationChannel
	listErr    error
}

func (m *mockChannelsRepo) ListActiveForUser(ctx context.Context, userID string, ids []string) ([]model.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalled++
	m.lastUserID = userID
	m.lastIDs = ids
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.channels, nil
}

type mockMailSender struct {
	mu sync.Mutex

	called     int
	recipients []string
	payloads   []model.AlertPayload
	ackURLs    []string
	err        error
}

func (m *mockMailSender) SendAlertEmail(ctx context.Context, to string, payload model.AlertPayload, ackURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.recipients = append(m.recipients, to)
	m.payloads = append(m.payloads, payload)
	m.ackURLs = append(m.ackURLs, ackURL)
	return m.err
}

func (m *mockMailSender) sent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called
}

type mockChannelSender struct {
	mu sync.Mutex

	called   int
	webhooks []string
	payloads []model.AlertPayload
	ackURLs  []string
	err      error
}

func (m *mockChannelSender) Send(ctx context.Context, webhookURL string, payload model.AlertPayload, ackURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called++
	m.webhooks = append(m.webhooks, webhookURL)
	m.payloads = append(m.payloads, payload)
	m.ackURLs = append(m.ackURLs, ackURL)
	return m.err
}

var (
	_ core.ChannelsRepository = (*mockChannelsRepo)(nil)
	_ core.MailSender         = (*mockMailSender)(nil)
	_ core.ChannelSender      = (*mockChannelSender)(nil)
)

func emailChannel(id, address string) model.NotificationChannel {
	return model.NotificationChannel{
		ID:          id,
		UserID:      "user-1",
		ChannelType: model.ChannelKindEmail,
		Name:        "Email",
		Config:      json.RawMessage(`{"email":"` + address + `"}`),
		IsActive:    true,
	}
}

func webhookChannel(id string, kind model.ChannelKind, url string) model.NotificationChannel {
	return model.NotificationChannel{
		ID:          id,
		UserID:      "user-1",
		ChannelType: kind,
		Name:        string(kind),
		Config:      json.RawMessage(`{"webhook_url":"` + url + `"}`),
		IsActive:    true,
	}
}

// dispatchFixture wires a DispatchService over mocks and a miniredis-backed
// KV, primed for a single email delivery. Tests flip mocks before Dispatch.
type dispatchFixture struct {
	queue    *mockAlertQueue
	alerts   *mockAlertsRepo
	channels *mockChannelsRepo
	registry *mockJobRegistry
	policy   *mockPolicyEngine
	mr       *miniredis.Miniredis
	mail     *mockMailSender
	teams    *mockChannelSender
	slack    *mockChannelSender
	now      time.Time
	svc      *DispatchService
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	job := premiumJob("job-1")
	job.NotificationChannelIDs = []string{"ch-1"}

	f := &dispatchFixture{
		queue:    &mockAlertQueue{},
		alerts:   &mockAlertsRepo{},
		channels: &mockChannelsRepo{channels: []model.NotificationChannel{emailChannel("ch-1", "owner@example.com")}},
		registry: &mockJobRegistry{jobs: map[string]*model.Job{"job-1": &job}},
		policy:   &mockPolicyEngine{},
		mr:       mr,
		mail:     &mockMailSender{},
		teams:    &mockChannelSender{},
		slack:    &mockChannelSender{},
		now:      time.Date(2025, 3, 7, 10, 30, 0, 0, time.UTC),
	}

	svc, err := NewDispatchService(DispatchServiceOptions{
		Queue:    f.queue,
		Alerts:   f.alerts,
		Channels: f.channels,
		Registry: f.registry,
		Policy:   f.policy,
		KV:       data.NewRedisKVRepo(client),
		Mail:     f.mail,
		Teams:    f.teams,
		Slack:    f.slack,
		Config: config.DispatcherConfig{
			Concurrency:        2,
			PollTimeout:        time.Second,
			ProcessedRecordTTL: time.Hour,
			DashboardURL:       "https://app.spyglass.dev",
		},
		Time: data.NewFixedTimeProvider(f.now),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *dispatchFixture) job() *model.Job {
	return f.registry.jobs["job-1"]
}

func dispatchPayload() *model.AlertPayload {
	return &model.AlertPayload{
		AlertID:             "alert-1",
		JobID:               "job-1",
		RunID:               "run_job-1_1741343400",
		SourceURL:           "https://shop.example.com/widgets",
		Title:               "Widget price dropped 40%",
		Content:             "The widget listing now advertises a 40% discount.",
		RelevanceScore:      82,
		UserID:              "user-1",
		Timestamp:           time.Date(2025, 3, 7, 10, 29, 0, 0, time.UTC),
		AcknowledgmentToken: "token-1",
	}
}

func TestProcessedAlertKey(t *testing.T) {
	assert.Equal(t, "processed_alert:run-1", ProcessedAlertKey("run-1"))
}

func TestNewDispatchService(t *testing.T) {
	valid := func() DispatchServiceOptions {
		return DispatchServiceOptions{
			Queue:    &mockAlertQueue{},
			Alerts:   &mockAlertsRepo{},
			Channels: &mockChannelsRepo{},
			Registry: &mockJobRegistry{},
			Policy:   &mockPolicyEngine{},
			KV:       data.NewRedisKVRepo(redis.NewClient(&redis.Options{})),
		}
	}

	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewDispatchService(valid())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	cases := []struct {
		name   string
		mutate func(*DispatchServiceOptions)
		want   string
	}{
		{"nil queue", func(o *DispatchServiceOptions) { o.Queue = nil }, "AlertQueue is required"},
		{"nil alerts", func(o *DispatchServiceOptions) { o.Alerts = nil }, "AlertsRepository is required"},
		{"nil channels", func(o *DispatchServiceOptions) { o.Channels = nil }, "ChannelsRepository is required"},
		{"nil registry", func(o *DispatchServiceOptions) { o.Registry = nil }, "JobRegistry is required"},
		{"nil policy", func(o *DispatchServiceOptions) { o.Policy = nil }, "PolicyEngine is required"},
		{"nil kv", func(o *DispatchServiceOptions) { o.KV = nil }, "KV is required"},
	}
	for _, tc := range cases {
		t.Run("returns error with "+tc.name, func(t *testing.T) {
			opts := valid()
			tc.mutate(&opts)
			_, err := NewDispatchService(opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDispatchService_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to every active channel and marks the alert sent", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.job().NotificationChannelIDs = []string{"ch-1", "ch-2", "ch-3"}
		f.channels.channels = []model.NotificationChannel{
			emailChannel("ch-1", "owner@example.com"),
			webhookChannel("ch-2", model.ChannelKindTeams, "https://teams.example.com/hook"),
			webhookChannel("ch-3", model.ChannelKindSlack, "https://hooks.slack.com/T1"),
		}
		payload := dispatchPayload()

		err := f.svc.Dispatch(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, []string{"owner@example.com"}, f.mail.recipients)
		assert.Equal(t, []string{"https://teams.example.com/hook"}, f.teams.webhooks)
		assert.Equal(t, []string{"https://hooks.slack.com/T1"}, f.slack.webhooks)
		assert.Equal(t, []string{"alert-1"}, f.alerts.markSentIDs)
		assert.Equal(t, "user-1", f.channels.lastUserID)
		assert.Equal(t, []string{"ch-1", "ch-2", "ch-3"}, f.channels.lastIDs)

		key := ProcessedAlertKey(payload.RunID)
		assert.Equal(t, "1", f.mr.HGet(key, "email_sent"))
		assert.Equal(t, "1", f.mr.HGet(key, "teams_sent"))
		assert.Equal(t, "1", f.mr.HGet(key, "slack_sent"))
		assert.Equal(t, "82", f.mr.HGet(key, "relevance_score"))
		assert.Equal(t, payload.Title, f.mr.HGet(key, "title"))
		assert.Equal(t, time.Hour, f.mr.TTL(key))
	})

	t.Run("builds the acknowledgment link when the job requires it", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.job().RequireAcknowledgment = true

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		require.Len(t, f.mail.ackURLs, 1)
		assert.Equal(t,
			"https://app.spyglass.dev/alerts/alert-1/acknowledge?token=token-1",
			f.mail.ackURLs[0])
	})

	t.Run("mints a token for payloads without one", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.job().RequireAcknowledgment = true
		f.alerts.ensureToken = "minted-9"
		payload := dispatchPayload()
		payload.AcknowledgmentToken = ""

		err := f.svc.Dispatch(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, 1, f.alerts.ensureTokenCalled)
		require.Len(t, f.mail.ackURLs, 1)
		assert.Contains(t, f.mail.ackURLs[0], "token=minted-9")
	})

	t.Run("omits the acknowledgment link when not required", func(t *testing.T) {
		f := newDispatchFixture(t)

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		require.Len(t, f.mail.ackURLs, 1)
		assert.Empty(t, f.mail.ackURLs[0])
		assert.Zero(t, f.alerts.ensureTokenCalled)
	})

	t.Run("suppresses a racing duplicate without delivering", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.policy.dedupOwner = "alert-0"

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		assert.Zero(t, f.mail.sent())
		assert.Zero(t, f.channels.listCalled)
		// The duplicate is still marked sent so the re-notifier ignores it.
		assert.Equal(t, []string{"alert-1"}, f.alerts.markSentIDs)
	})

	t.Run("delivers when the payload owns the dedup marker", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.policy.dedupOwner = "alert-1"

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		assert.Equal(t, 1, f.mail.sent())
	})

	t.Run("delivers anyway when the dedup check fails", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.policy.dedupErr = errors.New("kv down")

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		assert.Equal(t, 1, f.mail.sent())
	})

	t.Run("repeats skip the shield and the sent flag", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.policy.dedupOwner = "alert-0"
		payload := dispatchPayload()
		payload.RepeatOrdinal = 2

		err := f.svc.Dispatch(ctx, payload)

		require.NoError(t, err)
		assert.Zero(t, f.policy.dedupCalled)
		assert.Equal(t, 1, f.mail.sent())
		assert.Zero(t, f.alerts.markSentCalled)
	})

	t.Run("drops the alert when the job is gone", func(t *testing.T) {
		f := newDispatchFixture(t)
		delete(f.registry.jobs, "job-1")

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		assert.Zero(t, f.mail.sent())
		assert.Zero(t, f.alerts.markSentCalled)
	})

	t.Run("does nothing when the job references no channels", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.job().NotificationChannelIDs = nil

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.NoError(t, err)
		assert.Zero(t, f.channels.listCalled)
		assert.Zero(t, f.mail.sent())
		assert.Zero(t, f.alerts.markSentCalled)
	})

	t.Run("partial failure still counts as delivered", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.job().NotificationChannelIDs = []string{"ch-1", "ch-3"}
		f.channels.channels = []model.NotificationChannel{
			emailChannel("ch-1", "owner@example.com"),
			webhookChannel("ch-3", model.ChannelKindSlack, "https://hooks.slack.com/T1"),
		}
		f.mail.err = errors.New("smtp rejected")
		payload := dispatchPayload()

		err := f.svc.Dispatch(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, []string{"alert-1"}, f.alerts.markSentIDs)

		key := ProcessedAlertKey(payload.RunID)
		assert.Equal(t, "0", f.mr.HGet(key, "email_sent"))
		assert.Equal(t, "1", f.mr.HGet(key, "slack_sent"))
	})

	t.Run("returns an error when every delivery fails", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.mail.err = errors.New("smtp rejected")

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "all channel deliveries failed")
		assert.Zero(t, f.alerts.markSentCalled)
	})

	t.Run("fails a channel with malformed config", func(t *testing.T) {
		f := newDispatchFixture(t)
		ch := emailChannel("ch-1", "owner@example.com")
		ch.Config = json.RawMessage(`{}`)
		f.channels.channels = []model.NotificationChannel{ch}

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.Error(t, err)
		assert.Zero(t, f.mail.sent())
	})

	t.Run("rejects an invalid payload", func(t *testing.T) {
		f := newDispatchFixture(t)
		payload := dispatchPayload()
		payload.AlertID = ""

		err := f.svc.Dispatch(ctx, payload)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "alert_id is required")
		assert.Zero(t, f.registry.jobCalled)
	})

	t.Run("fails when channel lookup fails", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.channels.listErr = errors.New("db down")

		err := f.svc.Dispatch(ctx, dispatchPayload())

		require.Error(t, err)
		assert.Zero(t, f.mail.sent())
	})
}

func TestDispatchService_Run(t *testing.T) {
	t.Run("consumes queued payloads and stops on cancellation", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.queue.pending = []model.AlertPayload{*dispatchPayload()}

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- f.svc.Run(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		assert.Equal(t, 1, f.mail.sent())
		assert.Equal(t, []string{"alert-1"}, f.alerts.markSentIDs)
	})

	t.Run("keeps running after dequeue errors", func(t *testing.T) {
		f := newDispatchFixture(t)
		f.queue.dequeueErr = errors.New("connection reset")
		f.queue.dequeueErrCalls = 1

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- f.svc.Run(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
	})
}
