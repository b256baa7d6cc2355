// Package mining implements the mining-cycle accrual engine: the pure
// time-reconciliation arithmetic plus the per-user session state machine
// that converts elapsed wall-clock time into balance credits.
package mining

import "time"

// Reconcile converts the span between a stored last-cycle tick and the
// current time into whole completed cycles and the leftover fraction of
// the in-progress cycle. Both instants are epoch-milliseconds. Elapsed
// time is clamped to zero so a tick stamped ahead of the clock (skew,
// legacy data) can never produce negative credit. The returned leftover
// always satisfies 0 <= leftover < cycle.
//
// Used on session resume to credit cycles that completed while the
// process was not running and to reseed the in-progress cycle counter.
func Reconcile(lastTickMs, nowMs int64, cycle time.Duration) (fullCycles int64, leftover time.Duration) {
	cycleMs := cycle.Milliseconds()
	if cycleMs <= 0 {
		return 0, 0
	}

	elapsedMs := nowMs - lastTickMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}

	fullCycles = elapsedMs / cycleMs
	leftover = time.Duration(elapsedMs%cycleMs) * time.Millisecond
	return fullCycles, leftover
}

// SessionRemaining computes whole seconds left in a session ending at
// endMs, clamped to zero once the end has passed.
func SessionRemaining(endMs, nowMs int64) int64 {
	remaining := (endMs - nowMs) / 1000
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SessionProgress derives the percentage of a session of the given total
// duration that has elapsed, from the remaining whole seconds.
func SessionProgress(remainingSec int64, total time.Duration) float64 {
	totalSec := int64(total.Seconds())
	if totalSec <= 0 {
		return 100
	}
	return float64(totalSec-remainingSec) / float64(totalSec) * 100
}
