package metadata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/stats"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestStore_ColdStartReturnsNilNotError(t *testing.T) {
	s := newTestStore(t)

	decisions, err := s.LoadDecisions()
	require.NoError(t, err)
	assert.Nil(t, decisions)

	fields, err := s.LoadFieldStats()
	require.NoError(t, err)
	assert.Nil(t, fields)

	st, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	decisions := map[string]classify.PlacementDecision{
		"age": {Field: "age", Backend: classify.SQL, SQLType: "integer"},
	}
	require.NoError(t, s.SaveDecisions(decisions))

	loaded, err := s.LoadDecisions()
	require.NoError(t, err)
	assert.Equal(t, decisions, loaded)

	fieldStats := map[string]*stats.FieldStats{"age": {PresenceCount: 3}}
	require.NoError(t, s.SaveFieldStats(fieldStats))
	loadedFields, err := s.LoadFieldStats()
	require.NoError(t, err)
	require.Contains(t, loadedFields, "age")

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.SaveState(State{TotalRecordsProcessed: 42, LastFlushTime: now}))
	loadedState, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, int64(42), loadedState.TotalRecordsProcessed)
	assert.True(t, now.Equal(loadedState.LastFlushTime))
	assert.Equal(t, stateVersion, loadedState.Version)
}

func TestStore_WriteAtomicLeavesNoTempFileBehind(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveState(State{TotalRecordsProcessed: 1}))

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
