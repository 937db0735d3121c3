// Package backoff computes randomized exponential backoff delays, used by
// the orchestrator to space out retries of a failed flush. Adapted from the
// teacher's internal/exponential_backoff.go — same algorithm, renamed into
// its own package.
package backoff

import (
	"math/rand"
	"time"
)

const int64Max = 1<<63 - 1

// SleptFor returns a randomized backoff duration for the given retry count,
// bounded by maximum. slot is the base unit the backoff is scaled by.
func SleptFor(retries int64, slot, maximum time.Duration) (backoff time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			backoff = maximum
		}
	}()

	if slot <= 0 || retries <= 0 {
		return 0
	}
	// 2^retries - 1; the -1 is omitted since rand.Int63n's range is [0, max).
	umax := uint64(1) << retries
	if umax > int64Max || umax == 0 {
		return maximum
	}
	n := rand.Int63n(int64(umax))

	u64Time := uint64(slot.Nanoseconds()) * uint64(n)
	if u64Time > int64Max {
		return maximum
	}

	backoff = time.Duration(n) * slot
	if backoff > maximum {
		backoff = maximum
	}
	return backoff
}

// Sleep blocks for SleptFor(retries, slot, maximum).
func Sleep(retries int64, slot, maximum time.Duration) {
	time.Sleep(SleptFor(retries, slot, maximum))
}
