package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackSender_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the alert message", func(t *testing.T) {
		var gotMsg slackMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		}))
		defer server.Close()

		sender := NewSlackSender(SlackOptions{Config: testWebhookConfig()})

		ackURL := "http://localhost:3000/alerts/alert-1/acknowledge?token=tok-1"
		err := sender.Send(ctx, server.URL, testAlertPayload(), ackURL)

		require.NoError(t, err)
		assert.Equal(t, "*Q3 beat*", gotMsg.Text)

		require.Len(t, gotMsg.Attachments, 1)
		attachment := gotMsg.Attachments[0]
		assert.Equal(t, "danger", attachment.Color)
		require.Len(t, attachment.Fields, 5)
		assert.Equal(t, slackField{Title: "Message", Value: "Revenue up 12% against guidance.", Short: false}, attachment.Fields[0])
		assert.Equal(t, slackField{Title: "Relevance score", Value: "82/100", Short: true}, attachment.Fields[1])
		assert.Equal(t, "<https://news.example.com/earnings|View source>", attachment.Fields[3].Value)
		assert.Equal(t, "<"+ackURL+"|Acknowledge alert>", attachment.Fields[4].Value)
	})

	t.Run("omits the acknowledge field without a link", func(t *testing.T) {
		var gotMsg slackMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		}))
		defer server.Close()

		sender := NewSlackSender(SlackOptions{Config: testWebhookConfig()})

		require.NoError(t, sender.Send(ctx, server.URL, testAlertPayload(), ""))
		require.Len(t, gotMsg.Attachments, 1)
		assert.Len(t, gotMsg.Attachments[0].Fields, 4)
	})

	t.Run("requires a webhook URL", func(t *testing.T) {
		sender := NewSlackSender(SlackOptions{Config: testWebhookConfig()})

		err := sender.Send(ctx, "", testAlertPayload(), "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "slack webhook URL is required")
	})

	t.Run("gives up after the retry limit", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "channel_not_found", http.StatusNotFound)
		}))
		defer server.Close()

		sender := NewSlackSender(SlackOptions{Config: testWebhookConfig()})

		err := sender.Send(ctx, server.URL, testAlertPayload(), "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "slack delivery")
		assert.Equal(t, int32(2), calls.Load())
	})
}
