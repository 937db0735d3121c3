package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/schemaforge/internal/record"
	"github.com/schemaforge/schemaforge/internal/typeinfer"
)

func TestAnalyzer_PresenceAndNullCounts(t *testing.T) {
	a := New()
	a.Update([]record.Record{
		{"age": int64(30)},
		{"age": nil},
		{"age": int64(40)},
	})
	fs, ok := a.Get("age")
	require.True(t, ok)
	assert.Equal(t, int64(2), fs.PresenceCount)
	assert.Equal(t, int64(1), fs.NullCount)
	assert.Equal(t, int64(3), a.TotalRecordsSeen())
}

func TestAnalyzer_TypeStabilitySplitsOnMixedTypes(t *testing.T) {
	a := New()
	a.Update([]record.Record{
		{"age": int64(1)},
		{"age": int64(2)},
		{"age": "ten"},
	})
	fs, _ := a.Get("age")
	_, stability := fs.DominantType()
	assert.Less(t, stability, 1.0)
}

func TestAnalyzer_IsNestedForArraysAndObjects(t *testing.T) {
	a := New()
	a.Update([]record.Record{{"tags": []interface{}{"a", "b"}}})
	fs, _ := a.Get("tags")
	assert.True(t, fs.IsNested)
}

func TestAnalyzer_ArrayOfObjectsStatsOnlyProbe(t *testing.T) {
	a := New()
	a.Update([]record.Record{
		{"events": []interface{}{
			map[string]interface{}{"kind": "click", "value": int64(1)},
		}},
	})
	_, hasChild := a.Get("events_kind")
	assert.True(t, hasChild)
	fs, ok := a.Get("events")
	require.True(t, ok)
	// The array itself is untouched in the record; stats probe is additive only.
	assert.True(t, fs.IsNested)
}

func TestAnalyzer_UniqueValuesCapAt1000(t *testing.T) {
	a := New()
	recs := make([]record.Record, 0, 1500)
	for i := 0; i < 1500; i++ {
		recs = append(recs, record.Record{"id": int64(i)})
	}
	a.Update(recs)
	fs, _ := a.Get("id")
	assert.Equal(t, 1000, len(fs.UniqueValues))
	assert.Equal(t, int64(1500), fs.PresenceCount)
}

func TestAnalyzer_SampleValuesCapAt10(t *testing.T) {
	a := New()
	recs := make([]record.Record, 0, 50)
	for i := 0; i < 50; i++ {
		recs = append(recs, record.Record{"x": int64(i)})
	}
	a.Update(recs)
	fs, _ := a.Get("x")
	assert.Equal(t, 10, len(fs.SampleValues))
}

func TestFieldStats_UniqueRatioAndPresenceRatio(t *testing.T) {
	a := New()
	a.Update([]record.Record{
		{"k": "a"},
		{"k": "a"},
		{"k": "b"},
	})
	fs, _ := a.Get("k")
	assert.InDelta(t, 2.0/3.0, fs.UniqueRatio(), 0.001)
	assert.InDelta(t, 1.0, fs.PresenceRatio(3), 0.001)
}

func TestFieldStats_MarshalJSONRoundTrip(t *testing.T) {
	a := New()
	a.Update([]record.Record{{"name": "alice"}, {"name": "bob"}})
	fs, _ := a.Get("name")
	b, err := json.Marshal(&fs)
	require.NoError(t, err)

	var restored FieldStats
	require.NoError(t, json.Unmarshal(b, &restored))
	assert.Equal(t, fs.PresenceCount, restored.PresenceCount)
	assert.Equal(t, len(fs.UniqueValues), len(restored.UniqueValues))
	dominant, _ := restored.DominantType()
	assert.Equal(t, typeinfer.Str, dominant)
}

func TestAnalyzer_KeyCountedOncePerRecordEvenOnCollision(t *testing.T) {
	a := New()
	a.Update([]record.Record{{"a_b": "x"}})
	fs, _ := a.Get("a_b")
	assert.Equal(t, int64(1), fs.PresenceCount)
}

func TestAnalyzer_RestoreUndoesUpdateEntirely(t *testing.T) {
	a := New()
	a.Update([]record.Record{{"age": int64(1)}, {"age": int64(2)}})
	backup := a.Backup()

	a.Update([]record.Record{{"age": int64(3)}, {"name": "new"}})
	a.Restore(backup)

	fs, ok := a.Get("age")
	require.True(t, ok)
	assert.Equal(t, int64(2), fs.PresenceCount)
	assert.Equal(t, int64(2), a.TotalRecordsSeen())
	_, hasNew := a.Get("name")
	assert.False(t, hasNew, "a field introduced only by the rolled-back batch must disappear")
}

func TestAnalyzer_RestoreIsDetachedFromLaterUpdates(t *testing.T) {
	a := New()
	a.Update([]record.Record{{"k": "a"}})
	backup := a.Backup()

	a.Update([]record.Record{{"k": "b"}})
	fs, _ := a.Get("k")
	require.Equal(t, int64(2), fs.PresenceCount)

	a.Restore(backup)
	fs, _ = a.Get("k")
	assert.Equal(t, int64(1), fs.PresenceCount, "restore must not alias the live maps it backed up")
}
