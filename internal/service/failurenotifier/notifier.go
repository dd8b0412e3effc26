package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/spyglasshq/spyglass/internal/observability/notify"
)

// defaultMinInterval spaces repeated non-fatal notifications for the same
// worker. A persistent failure streak pages once per window, not once per tick.
const defaultMinInterval = 15 * time.Minute

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger      *slog.Logger
	Sinks       []SinkRegistration
	MinInterval time.Duration
}

// Service dispatches worker failure events to all registered sinks.
type Service struct {
	logger      *slog.Logger
	sinks       []SinkRegistration
	minInterval time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}

	minInterval := opts.MinInterval
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	return &Service{
		logger:      logger,
		sinks:       sinks,
		minInterval: minInterval,
		lastSent:    make(map[string]time.Time),
	}
}

// NotifyWorkerFailure fans the worker failure payload out to all sinks.
// Non-fatal repeats for the same worker are suppressed within the minimum
// interval; fatal halts always go out.
func (s *Service) NotifyWorkerFailure(ctx context.Context, payload notify.WorkerFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}

	if !s.shouldSend(payload) {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "suppressing repeat failure notification",
				"worker", payload.Worker,
				"consecutive", payload.Consecutive,
			)
		}
		return
	}

	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendWorkerFailure(ctx, payload); err != nil {
				s.logger.Error("failure notifier delivery error",
					"sink", entry.Name,
					"worker", payload.Worker,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

func (s *Service) shouldSend(payload notify.WorkerFailurePayload) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !payload.Fatal {
		if last, ok := s.lastSent[payload.Worker]; ok && now.Sub(last) < s.minInterval {
			return false
		}
	}
	s.lastSent[payload.Worker] = now
	return true
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
