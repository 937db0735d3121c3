package pipelineerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientBackendError_WrapsAndUnwraps(t *testing.T) {
	inner := errors.New("connection reset")
	err := NewTransientBackendError("relational", inner)
	assert.True(t, errors.Is(err, inner))
	assert.True(t, IsTransient(err))
	assert.False(t, IsPermanent(err))
}

func TestPermanentDDLConflictError_IsDetected(t *testing.T) {
	err := NewPermanentDDLConflictError("records", "primary key change refused")
	assert.True(t, IsPermanent(err))
	assert.False(t, IsTransient(err))
}

func TestErrNotAnObject_IsASentinel(t *testing.T) {
	wrapped := fmt.Errorf("ingest failed: %w", ErrNotAnObject)
	assert.Contains(t, wrapped.Error(), "not a JSON object")
	assert.True(t, errors.Is(wrapped, ErrNotAnObject))
}
