// Package classify turns cumulative field statistics into placement
// decisions: which backend(s) a field belongs in, its SQL type if any, and
// which field (if any) is the primary key for this cycle. See spec.md §4.3.
package classify

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/schemaforge/schemaforge/internal/hashkey"
	"github.com/schemaforge/schemaforge/internal/stats"
	"github.com/schemaforge/schemaforge/internal/typeinfer"
)

// Backend is where a field's value is stored.
type Backend int

const (
	SQL Backend = iota
	DOC
	BOTH
)

func (b Backend) String() string {
	switch b {
	case SQL:
		return "sql"
	case DOC:
		return "doc"
	case BOTH:
		return "both"
	default:
		return "unknown"
	}
}

// Thresholds holds the tunable placement/PK constants. See spec.md §8
// "Configuration": placement.min_presence, placement.min_type_stability,
// pk.min_unique.
type Thresholds struct {
	MinPresence      float64
	MinTypeStability float64
	PKMinUnique      float64
}

// DefaultThresholds returns the contract defaults: 0.70 / 0.90 / 0.70.
func DefaultThresholds() Thresholds {
	return Thresholds{MinPresence: 0.70, MinTypeStability: 0.90, PKMinUnique: 0.70}
}

// PlacementDecision is the classifier's verdict for one field, as of the
// most recent classification cycle.
type PlacementDecision struct {
	Field         string
	Backend       Backend
	SQLType       string
	IsNullable    bool
	IsUnique      bool
	IsPrimaryKey  bool
	DominantType  typeinfer.Type
	TypeStability float64
	PresenceRatio float64
	UniqueRatio   float64
	Reason        string
}

// alwaysBoth are the sentinel fields placement rule 1 routes to both
// backends unconditionally.
var alwaysBoth = map[string]struct{}{
	"username":       {},
	"sys_ingested_at": {},
	"t_stamp":         {},
}

// Classifier produces and memoizes placement decisions. Memoization is
// keyed on a hash of the inputs that actually affect the decision, so an
// unchanged field's decision is reused across cycles without being
// recomputed. Primary-key selection is not memoized: it runs over all
// decisions on every Classify call.
type Classifier struct {
	mu         sync.Mutex
	thresholds Thresholds
	cache      map[string]cachedDecision
}

type cachedDecision struct {
	inputHash uint64
	decision  PlacementDecision
}

// New returns a Classifier using the given thresholds.
func New(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds, cache: make(map[string]cachedDecision)}
}

// Classify produces a PlacementDecision for every field in snapshot and
// selects a primary key among the qualifying candidates. totalRecordsSeen
// is the analyzer's cumulative record count.
func (c *Classifier) Classify(snapshot map[string]*stats.FieldStats, totalRecordsSeen int64) map[string]PlacementDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	decisions := make(map[string]PlacementDecision, len(snapshot))
	for field, fs := range snapshot {
		decisions[field] = c.decideField(field, fs, totalRecordsSeen)
	}
	c.selectPrimaryKey(decisions, snapshot)
	return decisions
}

func (c *Classifier) decideField(field string, fs *stats.FieldStats, totalRecordsSeen int64) PlacementDecision {
	hash := hashInputs(field, fs, totalRecordsSeen)
	if cached, ok := c.cache[field]; ok && cached.inputHash == hash {
		return cached.decision
	}

	dominant, stability := fs.DominantType()
	presenceRatio := fs.PresenceRatio(totalRecordsSeen)
	uniqueRatio := fs.UniqueRatio()

	d := PlacementDecision{
		Field:         field,
		DominantType:  dominant,
		TypeStability: stability,
		PresenceRatio: presenceRatio,
		UniqueRatio:   uniqueRatio,
	}
	d.Backend, d.Reason = c.placeField(field, fs, presenceRatio, stability)
	d.IsNullable = fs.NullCount > 0 || presenceRatio < 1.0
	d.IsUnique = uniqueRatio >= 0.90 && !d.IsNullable
	if d.Backend != DOC {
		d.SQLType = sqlType(dominant)
	}

	c.cache[field] = cachedDecision{inputHash: hash, decision: d}
	return d
}

// placeField applies spec.md §4.3's ordered placement rules; first match
// wins. It also returns a short human-readable reason for the decision, per
// spec.md §3's PlacementDecision.reason.
func (c *Classifier) placeField(field string, fs *stats.FieldStats, presenceRatio, stability float64) (Backend, string) {
	if _, ok := alwaysBoth[field]; ok {
		return BOTH, "linking field: always routed to both backends"
	}
	if fs.IsNested {
		return DOC, "value observed as array/object: routed to document store"
	}
	if presenceRatio >= c.thresholds.MinPresence && stability >= c.thresholds.MinTypeStability {
		return SQL, fmt.Sprintf("presence_ratio=%.2f >= %.2f and type_stability=%.2f >= %.2f: placed in relational store",
			presenceRatio, c.thresholds.MinPresence, stability, c.thresholds.MinTypeStability)
	}
	return DOC, fmt.Sprintf("presence_ratio=%.2f or type_stability=%.2f below SQL thresholds (%.2f/%.2f): routed to document store",
		presenceRatio, stability, c.thresholds.MinPresence, c.thresholds.MinTypeStability)
}

// sqlType maps a dominant type to its SQL column type.
func sqlType(t typeinfer.Type) string {
	switch t {
	case typeinfer.Int:
		return "BIGINT"
	case typeinfer.Float:
		return "DOUBLE"
	case typeinfer.Bool:
		return "BOOLEAN"
	case typeinfer.Str:
		return "VARCHAR(255)"
	case typeinfer.IP:
		return "VARCHAR(45)"
	case typeinfer.UUID:
		return "CHAR(36)"
	case typeinfer.DateTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

var timestampNameFragments = []string{"_at", "time", "date"}

func looksLikeTimestampName(field string) bool {
	lower := strings.ToLower(field)
	for _, frag := range timestampNameFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

var pkNameFragments = []string{"id", "username", "key"}

func pkNameBonus(field string) float64 {
	lower := strings.ToLower(field)
	for _, frag := range pkNameFragments {
		if strings.Contains(lower, frag) {
			return 0.2
		}
	}
	return 0
}

// selectPrimaryKey scores every qualifying candidate and marks the winner
// is_primary_key = true in place. Ties break on lexicographic field name.
func (c *Classifier) selectPrimaryKey(decisions map[string]PlacementDecision, snapshot map[string]*stats.FieldStats) {
	type candidate struct {
		field string
		score float64
	}
	var candidates []candidate
	for field, d := range decisions {
		if d.Backend != SQL && d.Backend != BOTH {
			continue
		}
		if d.PresenceRatio < 1.0 {
			continue
		}
		if d.UniqueRatio < c.thresholds.PKMinUnique {
			continue
		}
		if !d.DominantType.IsScalar() {
			continue
		}
		if looksLikeTimestampName(field) {
			continue
		}
		score := pkNameBonus(field) + 0.8*d.UniqueRatio
		candidates = append(candidates, candidate{field: field, score: score})
	}
	if len(candidates) == 0 {
		return
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].field < candidates[j].field
	})
	winner := candidates[0].field
	d := decisions[winner]
	d.IsPrimaryKey = true
	d.Reason = fmt.Sprintf("%s; selected as primary key (score=%.2f)", d.Reason, candidates[0].score)
	decisions[winner] = d
}

// hashInputs hashes the subset of FieldStats that affects the decision, so
// memoization can short-circuit unchanged fields across classify cycles.
func hashInputs(field string, fs *stats.FieldStats, totalRecordsSeen int64) uint64 {
	var buf [8]byte
	parts := make([][]byte, 0, 8)
	parts = append(parts, []byte(field))
	putInt64(&buf, fs.PresenceCount)
	parts = append(parts, append([]byte(nil), buf[:]...))
	putInt64(&buf, fs.NullCount)
	parts = append(parts, append([]byte(nil), buf[:]...))
	putInt64(&buf, totalRecordsSeen)
	parts = append(parts, append([]byte(nil), buf[:]...))
	putInt64(&buf, int64(len(fs.UniqueValues)))
	parts = append(parts, append([]byte(nil), buf[:]...))
	if fs.IsNested {
		parts = append(parts, []byte{1})
	}
	for t, n := range fs.TypeCounts {
		putInt64(&buf, n)
		parts = append(parts, []byte{byte(t)}, append([]byte(nil), buf[:]...))
	}
	return hashkey.Of(parts...)
}

func putInt64(buf *[8]byte, v int64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}
