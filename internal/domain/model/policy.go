package model

// PolicyDecision is the policy engine's verdict on a candidate alert.
type PolicyDecision string

const (
	// PolicyAllow permits the alert commit.
	PolicyAllow PolicyDecision = "allow"
	// PolicySuppressCooldown blocks re-alerting on content seen within the
	// job's cooldown window.
	PolicySuppressCooldown PolicyDecision = "suppress_cooldown"
	// PolicySuppressRate blocks alerts beyond the job's hourly cap.
	PolicySuppressRate PolicyDecision = "suppress_rate"
	// PolicySuppressDuplicate blocks a second commit for the same
	// (job, source, hour) tuple.
	PolicySuppressDuplicate PolicyDecision = "suppress_duplicate"
)

// Allowed reports whether the decision permits an alert commit.
func (d PolicyDecision) Allowed() bool {
	return d == PolicyAllow
}

// Reason returns the human-readable suppression reason recorded in the
// analysis summary. Allow has no reason.
func (d PolicyDecision) Reason() string {
	switch d {
	case PolicySuppressCooldown:
		return "cooldown active"
	case PolicySuppressRate:
		return "rate limiting"
	case PolicySuppressDuplicate:
		return "duplicate content"
	default:
		return ""
	}
}

// String returns the string representation of the decision.
func (d PolicyDecision) String() string {
	return string(d)
}
