// Package stamina derives and monitors the regenerating per-member
// resource.
package stamina

import "time"

// Level derives the current stamina from a stored baseline.
//
// One point regenerates per period, capped at cap. A zero updatedAt means
// the baseline has never been stamped and is returned as-is. If now
// precedes updatedAt (clock skew), no regeneration is credited.
//
// Every display of stamina in the bot goes through this function so the
// status command, the wizard and the monitor can never disagree.
func Level(baseline int, updatedAt, now time.Time, period time.Duration, cap int) int {
	if updatedAt.IsZero() {
		return baseline
	}
	if period <= 0 {
		return minInt(cap, baseline)
	}
	elapsed := now.Sub(updatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return minInt(cap, baseline+int(elapsed/period))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
