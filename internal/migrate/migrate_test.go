package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRelational struct {
	written map[string]map[LinkKey]interface{}
	toRead  map[LinkKey]interface{}
}

func (f *fakeRelational) ReadColumnValues(_ context.Context, _, _ string) (map[LinkKey]interface{}, error) {
	return f.toRead, nil
}

func (f *fakeRelational) WriteColumnValues(_ context.Context, _, column string, values map[LinkKey]interface{}) error {
	if f.written == nil {
		f.written = make(map[string]map[LinkKey]interface{})
	}
	f.written[column] = values
	return nil
}

type fakeDocument struct {
	fieldValues map[LinkKey]interface{}
	setCalls    []setCall
}

type setCall struct {
	link   LinkKey
	fields map[string]interface{}
}

func (f *fakeDocument) FindFieldValues(_ context.Context, _, _ string) (map[LinkKey]interface{}, error) {
	return f.fieldValues, nil
}

func (f *fakeDocument) SetFields(_ context.Context, _ string, link LinkKey, fields map[string]interface{}) error {
	f.setCalls = append(f.setCalls, setCall{link: link, fields: fields})
	return nil
}

func TestMigrateDocToSQL_WritesFoundValuesIntoColumn(t *testing.T) {
	rel := &fakeRelational{}
	doc := &fakeDocument{fieldValues: map[LinkKey]interface{}{
		{Username: "alice", SysIngestedAt: "2024-01-01T00:00:00.000Z"}: int64(42),
	}}
	m := New(rel, doc, "records", zap.NewNop().Sugar())

	err := m.MigrateDocToSQL(context.Background(), "age")
	require.NoError(t, err)
	require.Contains(t, rel.written, "age")
	assert.Equal(t, int64(42), rel.written["age"][LinkKey{Username: "alice", SysIngestedAt: "2024-01-01T00:00:00.000Z"}])
}

func TestMigrateDocToSQL_NoValuesIsANoOp(t *testing.T) {
	rel := &fakeRelational{}
	doc := &fakeDocument{fieldValues: map[LinkKey]interface{}{}}
	m := New(rel, doc, "records", zap.NewNop().Sugar())

	err := m.MigrateDocToSQL(context.Background(), "age")
	require.NoError(t, err)
	assert.Empty(t, rel.written)
}

func TestMigrateSQLColumnToDoc_SetsFieldsOnMatchingDocuments(t *testing.T) {
	rel := &fakeRelational{toRead: map[LinkKey]interface{}{
		{Username: "bob", SysIngestedAt: "2024-01-01T00:00:00.000Z"}: "premium",
	}}
	doc := &fakeDocument{}
	m := New(rel, doc, "records", zap.NewNop().Sugar())

	err := m.MigrateSQLColumnToDoc(context.Background(), "records", "plan")
	require.NoError(t, err)
	require.Len(t, doc.setCalls, 1)
	assert.Equal(t, "bob", doc.setCalls[0].link.Username)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", doc.setCalls[0].link.SysIngestedAt)
	assert.Equal(t, "premium", doc.setCalls[0].fields["plan"])
}

func TestMigrateSQLColumnToDoc_SkipsRowsWithIncompleteLink(t *testing.T) {
	rel := &fakeRelational{toRead: map[LinkKey]interface{}{
		{Username: nil, SysIngestedAt: "2024-01-01T00:00:00.000Z"}: "orphaned",
	}}
	doc := &fakeDocument{}
	m := New(rel, doc, "records", zap.NewNop().Sugar())

	err := m.MigrateSQLColumnToDoc(context.Background(), "records", "plan")
	require.NoError(t, err)
	assert.Empty(t, doc.setCalls)
}
