package model

import (
	"fmt"
	"strings"
)

// JobQueueAction is the verb carried on the immediate-run queue.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobQueueAction string

const (
	// JobQueueActionCreate announces a newly created job; it triggers an
	// immediate first run.
	JobQueueActionCreate JobQueueAction = "create"
	// JobQueueActionDelete announces a deleted job; cached settings are
	// invalidated and nothing runs.
	JobQueueActionDelete JobQueueAction = "delete"
	// JobQueueActionRunNow requests an out-of-schedule run.
	JobQueueActionRunNow JobQueueAction = "run_now"
)

// Valid returns true if the action is one of the supported verbs.
func (a JobQueueAction) Valid() bool {
	switch a {
	case JobQueueActionCreate, JobQueueActionDelete, JobQueueActionRunNow:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so queue payloads with
// unknown verbs fail loudly at decode time.
func (a *JobQueueAction) UnmarshalText(text []byte) error {
	v := JobQueueAction(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid job queue action: %q", string(text))
	}
	*a = v
	return nil
}

// TriggersRun reports whether the action schedules an immediate batch.
func (a JobQueueAction) TriggersRun() bool {
	return a == JobQueueActionCreate || a == JobQueueActionRunNow
}

// JobQueueMessage is the job_queue wire record pushed by the external API.
type JobQueueMessage struct {
	JobID  string         `json:"job_id"`
	Action JobQueueAction `json:"action"`
}
