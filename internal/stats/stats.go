// Package stats tracks cumulative per-field statistics across every
// normalized record the pipeline has ever ingested. The analyzer is the
// only writer; the classifier (internal/classify) only ever reads a
// snapshot. See spec.md §4.2.
package stats

import (
	"encoding/json"
	"sync"

	"github.com/schemaforge/schemaforge/internal/record"
	"github.com/schemaforge/schemaforge/internal/typeinfer"
)

const (
	uniqueValuesCap = 1000
	sampleValuesCap = 10
)

// FieldStats is the cumulative observation record for one canonical field
// name. Zero value is a valid, empty FieldStats.
type FieldStats struct {
	PresenceCount int64                    `json:"presence_count"`
	NullCount     int64                    `json:"null_count"`
	TypeCounts    map[typeinfer.Type]int64 `json:"type_counts"`
	UniqueValues  map[string]struct{}      `json:"-"`
	IsNested      bool                     `json:"is_nested"`
	SampleValues  []interface{}            `json:"sample_values"`
}

func newFieldStats() *FieldStats {
	return &FieldStats{
		TypeCounts:   make(map[typeinfer.Type]int64),
		UniqueValues: make(map[string]struct{}),
	}
}

// fieldStatsJSON is the wire shape for field_stats.json: sets are
// serialized as arrays, per spec.md §8 ("sets serialized as arrays").
type fieldStatsJSON struct {
	PresenceCount int64         `json:"presence_count"`
	NullCount     int64         `json:"null_count"`
	TypeCounts    map[string]int64 `json:"type_counts"`
	UniqueValues  []string      `json:"unique_values"`
	IsNested      bool          `json:"is_nested"`
	SampleValues  []interface{} `json:"sample_values"`
}

// MarshalJSON implements the set-as-array wire format.
func (f *FieldStats) MarshalJSON() ([]byte, error) {
	tc := make(map[string]int64, len(f.TypeCounts))
	for t, n := range f.TypeCounts {
		tc[t.String()] = n
	}
	uv := make([]string, 0, len(f.UniqueValues))
	for v := range f.UniqueValues {
		uv = append(uv, v)
	}
	return json.Marshal(fieldStatsJSON{
		PresenceCount: f.PresenceCount,
		NullCount:     f.NullCount,
		TypeCounts:    tc,
		UniqueValues:  uv,
		IsNested:      f.IsNested,
		SampleValues:  f.SampleValues,
	})
}

// UnmarshalJSON reverses MarshalJSON, restoring the unique-value set.
func (f *FieldStats) UnmarshalJSON(data []byte) error {
	var w fieldStatsJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	f.PresenceCount = w.PresenceCount
	f.NullCount = w.NullCount
	f.IsNested = w.IsNested
	f.SampleValues = w.SampleValues
	f.TypeCounts = make(map[typeinfer.Type]int64, len(w.TypeCounts))
	for name, n := range w.TypeCounts {
		f.TypeCounts[typeFromString(name)] = n
	}
	f.UniqueValues = make(map[string]struct{}, len(w.UniqueValues))
	for _, v := range w.UniqueValues {
		f.UniqueValues[v] = struct{}{}
	}
	return nil
}

func typeFromString(s string) typeinfer.Type {
	for t := typeinfer.Null; t <= typeinfer.Object; t++ {
		if t.String() == s {
			return t
		}
	}
	return typeinfer.Str
}

// DominantType returns the most-observed type and its share of all typed
// observations (type_stability). An empty FieldStats returns (Null, 0).
func (f *FieldStats) DominantType() (typeinfer.Type, float64) {
	var total int64
	var best typeinfer.Type
	var bestCount int64
	for t, n := range f.TypeCounts {
		total += n
		if n > bestCount {
			bestCount, best = n, t
		}
	}
	if total == 0 {
		return typeinfer.Null, 0
	}
	return best, float64(bestCount) / float64(total)
}

// UniqueRatio returns |unique_values| / presence_count. With the set
// capped, this saturates at 1000/presence_count once presence_count
// exceeds the cap — callers relying on this for true cardinality beyond
// the cap should treat values near the saturation point as a lower bound.
func (f *FieldStats) UniqueRatio() float64 {
	if f.PresenceCount == 0 {
		return 0
	}
	return float64(len(f.UniqueValues)) / float64(f.PresenceCount)
}

// PresenceRatio returns presence_count / totalRecordsSeen.
func (f *FieldStats) PresenceRatio(totalRecordsSeen int64) float64 {
	if totalRecordsSeen == 0 {
		return 0
	}
	return float64(f.PresenceCount) / float64(totalRecordsSeen)
}

// Analyzer accumulates FieldStats across batches. Safe for concurrent use,
// though in practice only the orchestrator's single flush path writes.
type Analyzer struct {
	mu               sync.RWMutex
	fields           map[string]*FieldStats
	totalRecordsSeen int64
}

// New returns an empty Analyzer.
func New() *Analyzer {
	return &Analyzer{fields: make(map[string]*FieldStats)}
}

// Update folds every record in recs into the cumulative stats, then bumps
// total_records_seen by len(recs) exactly once.
func (a *Analyzer) Update(recs []record.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range recs {
		a.observeRecord(rec)
	}
	a.totalRecordsSeen += int64(len(recs))
}

func (a *Analyzer) observeRecord(rec record.Record) {
	for key, v := range rec {
		fs, ok := a.fields[key]
		if !ok {
			fs = newFieldStats()
			a.fields[key] = fs
		}
		a.observeValue(fs, key, v, rec)
	}
}

func (a *Analyzer) observeValue(fs *FieldStats, key string, v interface{}, rec record.Record) {
	t := typeinfer.Detect(v)
	if t == typeinfer.Null {
		fs.NullCount++
		fs.TypeCounts[t]++
		return
	}
	fs.PresenceCount++
	fs.TypeCounts[t]++
	if t.IsNested() {
		fs.IsNested = true
	}
	if t == typeinfer.Array {
		a.observeArrayOfObjectsProbe(fs, key, v, rec)
	}
	a.observeUniqueAndSample(fs, v)
}

// observeArrayOfObjectsProbe implements spec.md §4.1's statistics-only
// exception: an array whose first element is an object gets that element
// flattened with the parent key as prefix, purely to feed field stats for
// the nested sub-fields. The stored value is never touched.
func (a *Analyzer) observeArrayOfObjectsProbe(fs *FieldStats, key string, v interface{}, _ record.Record) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) == 0 {
		return
	}
	first, ok := arr[0].(map[string]interface{})
	if !ok {
		return
	}
	for childKey, childVal := range first {
		flatKey := key + "_" + childKey
		child, exists := a.fields[flatKey]
		if !exists {
			child = newFieldStats()
			a.fields[flatKey] = child
		}
		a.observeValue(child, flatKey, childVal, nil)
	}
}

func (a *Analyzer) observeUniqueAndSample(fs *FieldStats, v interface{}) {
	key := uniqueKey(v)
	if key != "" {
		if _, exists := fs.UniqueValues[key]; !exists && len(fs.UniqueValues) < uniqueValuesCap {
			fs.UniqueValues[key] = struct{}{}
		}
	}
	if len(fs.SampleValues) < sampleValuesCap {
		fs.SampleValues = append(fs.SampleValues, v)
	}
}

// uniqueKey renders v to a comparable string key for the unique-values set.
// Nested structures are excluded from uniqueness tracking (is_nested fields
// always route to DOC regardless of cardinality, so tracking their
// uniqueness buys nothing).
func uniqueKey(v interface{}) string {
	switch val := v.(type) {
	case []interface{}, map[string]interface{}:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Get returns a snapshot copy of the FieldStats for field, and whether it
// has been observed at all.
func (a *Analyzer) Get(field string) (FieldStats, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fs, ok := a.fields[field]
	if !ok {
		return FieldStats{}, false
	}
	return *fs, true
}

// Snapshot returns a deep-enough copy of every field's stats, suitable for
// get_field_stats() and for serialization.
func (a *Analyzer) Snapshot() map[string]*FieldStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]*FieldStats, len(a.fields))
	for k, fs := range a.fields {
		out[k] = deepCopyFieldStats(fs)
	}
	return out
}

// TotalRecordsSeen returns the cumulative record count across all Update calls.
func (a *Analyzer) TotalRecordsSeen() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalRecordsSeen
}

// LoadSnapshot replaces the analyzer's state wholesale, used during
// metadata recovery on startup.
func (a *Analyzer) LoadSnapshot(fields map[string]*FieldStats, totalRecordsSeen int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = fields
	a.totalRecordsSeen = totalRecordsSeen
}

// Backup is an opaque, fully-detached copy of the analyzer's state, taken
// by Backup and restorable with Restore.
type Backup struct {
	fields           map[string]*FieldStats
	totalRecordsSeen int64
}

func deepCopyFieldStats(fs *FieldStats) *FieldStats {
	cp := &FieldStats{
		PresenceCount: fs.PresenceCount,
		NullCount:     fs.NullCount,
		IsNested:      fs.IsNested,
		TypeCounts:    make(map[typeinfer.Type]int64, len(fs.TypeCounts)),
		UniqueValues:  make(map[string]struct{}, len(fs.UniqueValues)),
		SampleValues:  append([]interface{}(nil), fs.SampleValues...),
	}
	for t, n := range fs.TypeCounts {
		cp.TypeCounts[t] = n
	}
	for v := range fs.UniqueValues {
		cp.UniqueValues[v] = struct{}{}
	}
	return cp
}

// Backup takes a fully-detached snapshot of the analyzer's current state.
// A caller that is about to Update with a batch it hasn't committed to yet
// can Restore this backup to undo that Update in its entirety, including
// its effect on capped fields like UniqueValues and SampleValues where the
// update isn't simply invertible.
func (a *Analyzer) Backup() Backup {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fields := make(map[string]*FieldStats, len(a.fields))
	for k, fs := range a.fields {
		fields[k] = deepCopyFieldStats(fs)
	}
	return Backup{fields: fields, totalRecordsSeen: a.totalRecordsSeen}
}

// Restore replaces the analyzer's state with a prior Backup, discarding any
// Update applied since it was taken.
func (a *Analyzer) Restore(b Backup) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fields = b.fields
	a.totalRecordsSeen = b.totalRecordsSeen
}
