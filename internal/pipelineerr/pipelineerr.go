// Package pipelineerr defines the typed error conditions the pipeline
// distinguishes between when deciding whether to retry a flush, quarantine
// a batch, or fail loudly. See spec.md §9.
package pipelineerr

import (
	"errors"
	"fmt"
)

// ErrNotAnObject is returned when a top-level ingested value is not a JSON
// object and is therefore rejected before it ever reaches the WAL.
var ErrNotAnObject = errors.New("record is not a JSON object")

// ErrCorruptWALLine is returned internally by the WAL reader for a line
// that fails to decode; callers skip it and keep replaying.
var ErrCorruptWALLine = errors.New("corrupt WAL line")

// TransientBackendError wraps a backend failure (relational or document)
// that is expected to be retryable: connection drops, timeouts, deadlocks.
// The orchestrator keeps the WAL entry and retries the flush with backoff.
type TransientBackendError struct {
	Backend string
	Err     error
}

func NewTransientBackendError(backend string, err error) *TransientBackendError {
	return &TransientBackendError{Backend: backend, Err: err}
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient %s backend error: %v", e.Backend, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// PermanentDDLConflictError describes a schema reconciliation step that
// cannot proceed safely — most notably an attempted primary-key change on
// an existing table. No reconciliation path constructs it at present:
// relational.Client logs a refused primary-key change, notes it in the
// field's PlacementDecision.Reason, and carries on with the rest of the DDL.
type PermanentDDLConflictError struct {
	Table  string
	Reason string
}

func NewPermanentDDLConflictError(table, reason string) *PermanentDDLConflictError {
	return &PermanentDDLConflictError{Table: table, Reason: reason}
}

func (e *PermanentDDLConflictError) Error() string {
	return fmt.Sprintf("permanent DDL conflict on table %s: %s", e.Table, e.Reason)
}

// IsTransient reports whether err (or anything it wraps) is a
// TransientBackendError, i.e. worth retrying.
func IsTransient(err error) bool {
	var t *TransientBackendError
	return errors.As(err, &t)
}

// IsPermanent reports whether err (or anything it wraps) is a
// PermanentDDLConflictError, i.e. not worth retrying.
func IsPermanent(err error) bool {
	var p *PermanentDDLConflictError
	return errors.As(err, &p)
}
