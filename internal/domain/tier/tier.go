// Package tier resolves subscription-tier limits for job scheduling.
package tier

import (
	"fmt"
	"strings"
)

// Tier identifies a subscription level.
type Tier string

const (
	// TierFree is the default tier for new accounts.
	TierFree Tier = "free"
	// TierPremium unlocks minute-level polling.
	TierPremium Tier = "premium"
	// TierPremiumPlus removes the active-job cap.
	TierPremiumPlus Tier = "premium_plus"
)

// UnlimitedJobs marks a tier without an active-job cap.
const UnlimitedJobs = -1

// Limits are the per-tier scheduling constraints.
type Limits struct {
	// ActiveJobLimit caps concurrently active jobs; UnlimitedJobs disables the cap.
	ActiveJobLimit int
	// MinFrequencyMinutes is the smallest polling interval the tier permits.
	MinFrequencyMinutes int
}

var tierLimits = map[Tier]Limits{
	TierFree:        {ActiveJobLimit: 3, MinFrequencyMinutes: 1440},
	TierPremium:     {ActiveJobLimit: 10, MinFrequencyMinutes: 1},
	TierPremiumPlus: {ActiveJobLimit: UnlimitedJobs, MinFrequencyMinutes: 1},
}

// Valid returns true if the tier is a known subscription level.
func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}

// Normalize maps arbitrary stored tier strings onto a known tier. Unknown or
// empty values fall back to free, matching how accounts were provisioned
// before tiers existed.
func Normalize(raw string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if t.Valid() {
		return t
	}
	return TierFree
}

// LimitsFor returns the scheduling limits for the given tier string.
func LimitsFor(raw string) Limits {
	return tierLimits[Normalize(raw)]
}

// MinFrequencyMinutes resolves the minimum polling frequency for a tier string.
func MinFrequencyMinutes(raw string) int {
	return LimitsFor(raw).MinFrequencyMinutes
}

// AllowsJobCount reports whether the tier permits the given number of active
// jobs.
func (l Limits) AllowsJobCount(active int) bool {
	if l.ActiveJobLimit == UnlimitedJobs {
		return true
	}
	return active <= l.ActiveJobLimit
}

// AllowsFrequency reports whether the tier permits a polling interval.
func (l Limits) AllowsFrequency(frequencyMinutes int) bool {
	return frequencyMinutes >= l.MinFrequencyMinutes
}

// ValidateFrequency returns a descriptive error when the interval is below
// the tier minimum.
func ValidateFrequency(raw string, frequencyMinutes int) error {
	limits := LimitsFor(raw)
	if limits.AllowsFrequency(frequencyMinutes) {
		return nil
	}
	return fmt.Errorf("minimum frequency for %s tier is %d minutes", Normalize(raw), limits.MinFrequencyMinutes)
}
