package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelKindValid(t *testing.T) {
	assert.True(t, ChannelKindEmail.Valid())
	assert.True(t, ChannelKindTeams.Valid())
	assert.True(t, ChannelKindSlack.Valid())
	assert.False(t, ChannelKind("pager").Valid())
}

func TestEmailConfig(t *testing.T) {
	ch := NotificationChannel{
		ChannelType: ChannelKindEmail,
		Config:      json.RawMessage(`{"email": "ops@example.com"}`),
	}

	cfg, err := ch.EmailConfig()
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", cfg.Email)

	ch.Config = json.RawMessage(`{}`)
	_, err = ch.EmailConfig()
	assert.Error(t, err)

	ch.Config = nil
	_, err = ch.EmailConfig()
	assert.Error(t, err)
}

func TestWebhookConfig(t *testing.T) {
	ch := NotificationChannel{
		ChannelType: ChannelKindSlack,
		Config:      json.RawMessage(`{"webhook_url": "https://hooks.slack.example/T000/B000"}`),
	}

	cfg, err := ch.WebhookConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.slack.example/T000/B000", cfg.WebhookURL)

	ch.Config = json.RawMessage(`{"webhook_url": ""}`)
	_, err = ch.WebhookConfig()
	assert.Error(t, err)

	ch.Config = json.RawMessage(`not json`)
	_, err = ch.WebhookConfig()
	assert.Error(t, err)
}

func TestJobQueueActionUnmarshal(t *testing.T) {
	var msg JobQueueMessage
	require.NoError(t, json.Unmarshal([]byte(`{"job_id": "j1", "action": "run_now"}`), &msg))
	assert.Equal(t, JobQueueActionRunNow, msg.Action)
	assert.True(t, msg.Action.TriggersRun())

	require.NoError(t, json.Unmarshal([]byte(`{"job_id": "j1", "action": "delete"}`), &msg))
	assert.False(t, msg.Action.TriggersRun())

	err := json.Unmarshal([]byte(`{"job_id": "j1", "action": "pause"}`), &msg)
	assert.Error(t, err)
}
