// Package keylock provides a mutex keyed by an arbitrary string — cheaper
// than one global lock when unrelated keys (table names, collection names)
// must never block each other's schema reconciliation. Adopted from the
// teacher's go.mod dependency on github.com/EagleChen/mapmutex, which has no
// call site in the copied teacher subtree; this gives it its designed job.
package keylock

import "github.com/EagleChen/mapmutex"

// Locker serializes access to each distinct key.
type Locker struct {
	mm *mapmutex.Mutex
}

// New returns a Locker with the teacher's tuned backoff parameters
// (maxRetries, maxDelay ns, delta, factor, slowRate — see mapmutex.NewCustomizedMapMutex).
func New() *Locker {
	return &Locker{mm: mapmutex.NewCustomizedMapMutex(800, 100_000_000, 10, 1.1, 0.2)}
}

// TryLock attempts to acquire the lock for key, retrying internally per the
// tuned backoff. It reports false if the key could not be locked before
// giving up.
func (l *Locker) TryLock(key string) bool {
	return l.mm.TryLock(key)
}

// Unlock releases the lock for key.
func (l *Locker) Unlock(key string) {
	l.mm.Unlock(key)
}
