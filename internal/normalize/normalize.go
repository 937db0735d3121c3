// Package normalize turns a raw ingested record into the flat, type-coerced
// shape the rest of the pipeline assumes: dot-free keys (nested objects
// joined with underscores), leaf values coerced to their detected type,
// sys_ingested_at always present, and t_stamp coerced when supplied. See
// spec.md §4.1.
package normalize

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/coerce"
	"github.com/schemaforge/schemaforge/internal/record"
)

const (
	sysIngestedAt = "sys_ingested_at"
	tStamp        = "t_stamp"
)

// collisionTracker remembers (canonical, colliding path) pairs we've already
// warned about, so a busy field doesn't spam the log every batch. Resolves
// spec.md's Open Question 1: collapse colliding paths onto one canonical
// field, but surface a warning the first time it happens.
type collisionTracker struct {
	seen map[[2]string]struct{} // (canonical, colliding path) pairs already warned about
}

func newCollisionTracker() *collisionTracker {
	return &collisionTracker{seen: make(map[[2]string]struct{})}
}

func (c *collisionTracker) observe(log *zap.SugaredLogger, canonical, original string) {
	pair := [2]string{canonical, original}
	if _, warned := c.seen[pair]; warned {
		return
	}
	c.seen[pair] = struct{}{}
	if log != nil {
		log.Warnw("flattened paths collapsed onto the same canonical field",
			"canonical_field", canonical, "colliding_path", original)
	}
}

// Normalizer flattens, coerces, and injects sentinel fields into raw
// records. It is not safe for concurrent use on its own: the
// collision-warning tracker is an unguarded map, and the orchestrator only
// calls Normalize while holding its mutex.
type Normalizer struct {
	log        *zap.SugaredLogger
	collisions *collisionTracker
}

// New creates a Normalizer. log may be nil, in which case collision warnings
// are silently dropped.
func New(log *zap.SugaredLogger) *Normalizer {
	return &Normalizer{log: log, collisions: newCollisionTracker()}
}

// Normalize flattens nested objects, coerces leaf strings, and injects
// sys_ingested_at if absent. It never fails: an unparseable leaf is left as
// a string. normalize(normalize(x)) == normalize(x) — flattening a record
// that is already flat and coercing already-typed values is idempotent.
func (n *Normalizer) Normalize(in record.Record) record.Record {
	out := make(record.Record, len(in))
	n.flattenInto(out, "", in)
	n.inject(out)
	return out
}

func (n *Normalizer) flattenInto(out record.Record, prefix string, in record.Record) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "_" + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			n.flattenInto(out, key, record.Record(val))
		case record.Record:
			n.flattenInto(out, key, val)
		default:
			n.setLeaf(out, key, k, v)
		}
	}
}

func (n *Normalizer) setLeaf(out record.Record, canonical, original string, v interface{}) {
	if _, exists := out[canonical]; exists {
		n.collisions.observe(n.log, canonical, original)
	}
	if canonical == sysIngestedAt {
		// sys_ingested_at keeps the ISO 8601 string form inject() writes,
		// whether supplied upstream or injected on an earlier pass.
		out[canonical] = v
		return
	}
	if arr, ok := v.([]interface{}); ok {
		// Arrays are never flattened for storage — they stay as-is so the
		// classifier can route them to the document backend as nested.
		out[canonical] = arr
		return
	}
	out[canonical] = coerce.Value(v)
}

func (n *Normalizer) inject(out record.Record) {
	if _, ok := out[sysIngestedAt]; !ok {
		out[sysIngestedAt] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	}
	if v, ok := out[tStamp]; ok {
		out[tStamp] = coerce.Value(v)
	}
}

// Validate rejects a top-level value that is not an object, per spec.md
// §7's "malformed input" rule: a record that is not an object is rejected
// at ingest before it ever touches the WAL.
func Validate(v interface{}) (record.Record, error) {
	switch r := v.(type) {
	case record.Record:
		return r, nil
	case map[string]interface{}:
		return record.Record(r), nil
	default:
		return nil, fmt.Errorf("record is not a JSON object: got %T", v)
	}
}
