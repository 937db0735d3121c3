package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaforge/schemaforge/internal/record"
)

func TestNormalize_FlattensNestedObjects(t *testing.T) {
	n := New(nil)
	in := record.Record{
		"username": "alice",
		"location": map[string]interface{}{
			"city": "berlin",
			"geo": map[string]interface{}{
				"lat": "52.5",
			},
		},
	}
	out := n.Normalize(in)
	assert.Equal(t, "alice", out["username"])
	assert.Equal(t, "berlin", out["location_city"])
	assert.Equal(t, 52.5, out["location_geo_lat"])
	_, nested := out["location"]
	assert.False(t, nested, "nested object key should not survive flattening")
}

func TestNormalize_PreservesArrays(t *testing.T) {
	n := New(nil)
	in := record.Record{"tags": []interface{}{"a", "b", "c"}}
	out := n.Normalize(in)
	assert.Equal(t, []interface{}{"a", "b", "c"}, out["tags"])
}

func TestNormalize_CoercesLeafStrings(t *testing.T) {
	n := New(nil)
	in := record.Record{"count": "42", "active": "true"}
	out := n.Normalize(in)
	assert.Equal(t, int64(42), out["count"])
	assert.Equal(t, true, out["active"])
}

func TestNormalize_InjectsSysIngestedAtWhenAbsent(t *testing.T) {
	n := New(nil)
	out := n.Normalize(record.Record{"username": "bob"})
	ts, ok := out[sysIngestedAt].(string)
	require.True(t, ok)
	assert.NotEmpty(t, ts)
}

func TestNormalize_DoesNotOverrideSuppliedSysIngestedAt(t *testing.T) {
	n := New(nil)
	in := record.Record{sysIngestedAt: "2020-01-01T00:00:00.000Z"}
	out := n.Normalize(in)
	assert.Equal(t, "2020-01-01T00:00:00.000Z", out[sysIngestedAt])
}

func TestNormalize_CoercesTStampIfPresent(t *testing.T) {
	n := New(nil)
	in := record.Record{tStamp: "2024-01-15T10:30:00Z"}
	out := n.Normalize(in)
	_, isTime := out[tStamp].(interface{ String() string })
	assert.True(t, isTime)
}

func TestNormalize_CollidingPathsCollapseOntoCanonicalField(t *testing.T) {
	n := New(nil)
	in := record.Record{
		"a_b": "first",
		"a": map[string]interface{}{
			"b": "second",
		},
	}
	out := n.Normalize(in)
	_, exists := out["a_b"]
	assert.True(t, exists)
}

func TestValidate_AcceptsObject(t *testing.T) {
	r, err := Validate(map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, record.Record{"x": 1}, r)
}

func TestValidate_RejectsNonObject(t *testing.T) {
	_, err := Validate([]interface{}{1, 2, 3})
	assert.Error(t, err)
}
