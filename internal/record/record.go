// Package record defines the wire-level shape records take as they move
// through the pipeline: an unordered, semi-structured mapping from string
// keys to JSON-like values.
package record

// Record is an unordered mapping from string keys to JSON-like values
// (scalar, null, array, object). Before normalization keys may be nested
// (dotted paths from a flattened source document); after normalization every
// key is flat.
type Record map[string]interface{}

// Clone returns a shallow copy of r. Nested maps/slices are not deep-copied;
// callers that mutate nested values in place must copy those themselves.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Batch is a sequence of records flushed together as a unit.
type Batch struct {
	Records []Record
	SeqNum  int64
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}
