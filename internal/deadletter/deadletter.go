// Package deadletter persists batches that have exhausted their flush
// retries, so a permanently failing batch doesn't wedge the pipeline
// forever re-attempting the same flush. This is a supplemental feature
// beyond the WAL's crash-recovery role: the WAL protects against a crash
// mid-flush, deadletter protects against a batch the backends will simply
// never accept. Grounded on the teacher's cmd/mqtt-bridge/queue.go, which
// wraps github.com/beeker1121/goque for durable local queuing.
package deadletter

import (
	"fmt"

	"github.com/beeker1121/goque"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/record"
)

// Entry is one quarantined batch, with the reason it was quarantined.
type Entry struct {
	Records []record.Record `json:"records"`
	Reason  string          `json:"reason"`
}

// Queue wraps a goque.Queue for durable on-disk storage of quarantined
// batches.
type Queue struct {
	q   *goque.Queue
	log *zap.SugaredLogger
}

// Open opens (creating if absent) the dead-letter queue at dir.
func Open(dir string, log *zap.SugaredLogger) (*Queue, error) {
	q, err := goque.OpenQueue(dir)
	if err != nil {
		return nil, fmt.Errorf("open dead-letter queue at %s: %w", dir, err)
	}
	return &Queue{q: q, log: log}, nil
}

// Close releases the underlying queue's file handles.
func (q *Queue) Close() error {
	return q.q.Close()
}

// Push quarantines recs with the given reason.
func (q *Queue) Push(recs []record.Record, reason string) error {
	entry := Entry{Records: recs, Reason: reason}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	if _, err := q.q.Enqueue(b); err != nil {
		return fmt.Errorf("enqueue dead-letter entry: %w", err)
	}
	if q.log != nil {
		q.log.Warnw("batch quarantined to dead-letter queue", "records", len(recs), "reason", reason)
	}
	return nil
}

// Pop removes and returns the oldest quarantined entry, or (nil, false) if
// the queue is empty.
func (q *Queue) Pop() (*Entry, bool, error) {
	if q.q.Length() == 0 {
		return nil, false, nil
	}
	item, err := q.q.Dequeue()
	if err != nil {
		return nil, false, fmt.Errorf("dequeue dead-letter entry: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal dead-letter entry: %w", err)
	}
	return &entry, true, nil
}

// Len returns the number of quarantined entries currently stored.
func (q *Queue) Len() uint64 {
	return q.q.Length()
}
