// Package hashkey computes stable hashes for in-process cache keys; its one
// caller is the classifier's per-field decision memo. Adapted from the teacher's internal/hashing.go (AsXXHash),
// swapped from zeebe/xxh3 to cespare/xxhash/v2 — same role (a fast
// non-cryptographic hash for in-process cache keys), different library
// already used elsewhere in the teacher's go.mod for the same purpose.
package hashkey

import "github.com/cespare/xxhash/v2"

// Of returns the xxhash64 of the concatenation of inputs, suitable as a
// cache key or a stable fingerprint for a link tuple. Not cryptographic.
func Of(inputs ...[]byte) uint64 {
	h := xxhash.New()
	for _, in := range inputs {
		_, _ = h.Write(in)
	}
	return h.Sum64()
}

// OfStrings is a convenience wrapper over Of for string inputs.
func OfStrings(inputs ...string) uint64 {
	h := xxhash.New()
	for _, in := range inputs {
		_, _ = h.WriteString(in)
	}
	return h.Sum64()
}
