package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/spyglasshq/spyglass/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := notify.WorkerFailurePayload{
		Worker:      "scheduler",
		WorkerID:    "worker-7f3a",
		Error:       "boom",
		ErrorClass:  "err_class",
		Consecutive: 3,
	}
	event := client.buildEvent(payload)

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "spyglass" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "spyglass" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"worker", "worker_id", "error", "error_class", "consecutive_failures", "fatal"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	dedup, _ := event["dedup_key"].(string)
	if !strings.Contains(dedup, "scheduler") {
		t.Fatalf("expected dedup key to reference worker, got %s", dedup)
	}
}

func TestBuildEventFatalSummary(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.WorkerFailurePayload{
		Worker: "renotifier",
		Fatal:  true,
	})

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	summary, _ := payloadSection["summary"].(string)
	if !strings.Contains(summary, "halted") {
		t.Fatalf("expected halted summary, got %q", summary)
	}
}
