package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/schemaforge/internal/classify"
	"github.com/schemaforge/schemaforge/internal/record"
)

type fakeRelational struct {
	ensuredTable string
	ensuredDecs  map[string]classify.PlacementDecision
	insertedRows []record.Record
	insertedPK   string
}

func (f *fakeRelational) EnsureTable(_ context.Context, table string, decisions map[string]classify.PlacementDecision) error {
	f.ensuredTable = table
	f.ensuredDecs = decisions
	return nil
}

func (f *fakeRelational) InsertBatch(_ context.Context, _ string, rows []record.Record, _ []string, pk string) error {
	f.insertedRows = rows
	f.insertedPK = pk
	return nil
}

type fakeDocument struct {
	indexedKey   string
	insertedDocs []record.Record
	insertedKey  string
}

func (f *fakeDocument) EnsureIndexes(_ context.Context, _ string, keyField string) error {
	f.indexedKey = keyField
	return nil
}

func (f *fakeDocument) InsertBatch(_ context.Context, _ string, docs []record.Record, keyField string) error {
	f.insertedDocs = docs
	f.insertedKey = keyField
	return nil
}

func TestRoute_SplitsFieldsByBackend(t *testing.T) {
	decisions := map[string]classify.PlacementDecision{
		"id":       {Backend: classify.SQL, IsPrimaryKey: true, IsUnique: true},
		"username": {Backend: classify.BOTH},
		"tags":     {Backend: classify.DOC},
	}
	recs := []record.Record{
		{"id": int64(1), "username": "alice", "tags": []interface{}{"a"}},
	}
	rel := &fakeRelational{}
	doc := &fakeDocument{}
	r := New(rel, doc, "records")

	sqlCount, docCount, err := r.Route(context.Background(), recs, decisions)
	require.NoError(t, err)
	assert.Equal(t, 1, sqlCount)
	assert.Equal(t, 1, docCount)

	require.Len(t, rel.insertedRows, 1)
	assert.Equal(t, int64(1), rel.insertedRows[0]["id"])
	assert.Equal(t, "alice", rel.insertedRows[0]["username"])
	_, hasTags := rel.insertedRows[0]["tags"]
	assert.False(t, hasTags)

	require.Len(t, doc.insertedDocs, 1)
	assert.Equal(t, "alice", doc.insertedDocs[0]["username"])
	assert.Equal(t, []interface{}{"a"}, doc.insertedDocs[0]["tags"])
}

func TestRoute_UnknownFieldsGoToDocOnly(t *testing.T) {
	decisions := map[string]classify.PlacementDecision{}
	recs := []record.Record{{"mystery": "value"}}
	rel := &fakeRelational{}
	doc := &fakeDocument{}
	r := New(rel, doc, "records")

	_, docCount, err := r.Route(context.Background(), recs, decisions)
	require.NoError(t, err)
	assert.Equal(t, 1, docCount)
	assert.Empty(t, rel.insertedRows)
}

func TestRoute_RecordMissingPrimaryKeyOmittedFromSQL(t *testing.T) {
	decisions := map[string]classify.PlacementDecision{
		"id":   {Backend: classify.SQL, IsPrimaryKey: true, IsUnique: true},
		"name": {Backend: classify.SQL},
	}
	recs := []record.Record{
		{"name": "no-id-here"},
	}
	rel := &fakeRelational{}
	doc := &fakeDocument{}
	r := New(rel, doc, "records")

	sqlCount, docCount, err := r.Route(context.Background(), recs, decisions)
	require.NoError(t, err)
	assert.Equal(t, 0, sqlCount)
	assert.Equal(t, 1, docCount)
}

func TestDocumentKeyField_FallsBackToUniqueFieldWhenPKNotDocPlaced(t *testing.T) {
	decisions := map[string]classify.PlacementDecision{
		"id":    {Backend: classify.SQL, IsPrimaryKey: true, IsUnique: true},
		"email": {Backend: classify.DOC, IsUnique: true},
	}
	key := documentKeyField(decisions, "id")
	assert.Equal(t, "email", key)
}
