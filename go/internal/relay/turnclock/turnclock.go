// Package turnclock decides who owns the turn. The owner is a pure function
// of globally observable, append-only or immutable facts (start time, player
// list, time limit) and the current instant, never of a previously stored
// owner value. Any number of clients computing and writing the turn pointer
// concurrently converge on the same value, so last-writer-wins overwrites
// are harmless.
package turnclock

import (
	"time"
)

// ComputeOwnerIndex returns the index of the turn owner at instant now.
// Elapsed minutes are truncated toward zero and clamped to >= 0, so a clock
// slightly behind the start time still yields the first owner. The second
// return value is false when there is no owner to compute: an empty player
// list (or a non-positive time limit, which the data model forbids but an
// untrusted store can still present).
func ComputeOwnerIndex(startTime time.Time, playerCount, timeLimitMinutes int, now time.Time) (int, bool) {
	if playerCount <= 0 || timeLimitMinutes <= 0 {
		return 0, false
	}
	elapsedMinutes := int(now.Sub(startTime).Minutes())
	if elapsedMinutes < 0 {
		elapsedMinutes = 0
	}
	turnsElapsed := elapsedMinutes / timeLimitMinutes
	return turnsElapsed % playerCount, true
}

// Remaining returns the time left in the current turn at instant now.
func Remaining(startTime time.Time, timeLimitMinutes int, now time.Time) time.Duration {
	limit := time.Duration(timeLimitMinutes) * time.Minute
	if limit <= 0 {
		return 0
	}
	elapsed := now.Sub(startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	return limit - elapsed%limit
}
