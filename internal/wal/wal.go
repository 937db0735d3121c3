// Package wal implements the pipeline's write-ahead log: one normalized
// record per line in pending.jsonl, appended with fsync before the caller
// is acknowledged, replayed on startup, and truncated to zero length (not
// deleted and recreated) once a flush succeeds. See spec.md §4.8, §6.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/record"
)

// FileName is the exact, contract-mandated WAL filename.
const FileName = "pending.jsonl"

// WAL is a single append-only file shared by one writer. Safe for
// concurrent use; callers in practice serialize through the orchestrator's
// single mutex, but Append/Replay/Truncate each take their own lock so the
// type holds correctly on its own.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	log  *zap.SugaredLogger
}

// Open opens (creating if absent) pending.jsonl under dir for append, and
// returns a WAL ready for use.
func Open(dir string, log *zap.SugaredLogger) (*WAL, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open WAL file %s: %w", path, err)
	}
	return &WAL{file: f, log: log}, nil
}

// Close releases the underlying file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Append writes rec as one JSON line and fsyncs before returning, so a
// crash immediately after Append returns never loses the record.
func (w *WAL) Append(rec record.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record for WAL: %w", err)
	}
	if _, err := w.file.Seek(0, os.SEEK_END); err != nil {
		return fmt.Errorf("seek WAL to end: %w", err)
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append WAL line: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("fsync WAL: %w", err)
	}
	return nil
}

// Replay reads every line currently in the WAL and returns the decoded
// records in file order. A line that fails to decode is skipped and
// logged; replay never aborts on a single corrupt line.
func (w *WAL) Replay() ([]record.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, os.SEEK_SET); err != nil {
		return nil, fmt.Errorf("seek WAL to start: %w", err)
	}

	var out []record.Record
	scanner := bufio.NewScanner(w.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if w.log != nil {
				w.log.Warnw("skipping corrupt WAL line during replay", "error", err)
			}
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan WAL: %w", err)
	}
	return out, nil
}

// Truncate sets the WAL's length to zero in place — never delete-and-
// recreate, so any reader holding the path sees a consistent empty file
// rather than a missing one mid-swap.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate WAL: %w", err)
	}
	if _, err := w.file.Seek(0, os.SEEK_SET); err != nil {
		return fmt.Errorf("seek WAL to start after truncate: %w", err)
	}
	return nil
}
