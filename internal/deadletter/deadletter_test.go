package deadletter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/schemaforge/internal/record"
)

func TestQueue_PushAndPopRoundTrips(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, nil)
	require.NoError(t, err)
	defer q.Close()

	recs := []record.Record{{"id": int64(1)}, {"id": int64(2)}}
	require.NoError(t, q.Push(recs, "relational backend unreachable after max retries"))

	assert.Equal(t, uint64(1), q.Len())

	entry, ok, err := q.Pop()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "relational backend unreachable after max retries", entry.Reason)
	require.Len(t, entry.Records, 2)
}

func TestQueue_PopOnEmptyQueueReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, nil)
	require.NoError(t, err)
	defer q.Close()

	_, ok, err := q.Pop()
	require.NoError(t, err)
	assert.False(t, ok)
}
