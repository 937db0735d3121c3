// Package coerce rewrites raw leaf string values into their detected native
// Go representation, in the fixed order spec.md §4.1 mandates: datetime,
// uuid, ip, bool, int, float. The first that matches wins; a string matching
// none of them is left untouched. Style follows the teacher's
// cmd/kafka-to-postgresql-v2/worker parseValue: a type switch that tries
// each candidate shape and falls through to string.
package coerce

import (
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/schemaforge/schemaforge/internal/typeinfer"
)

// Value coerces a single leaf value. Non-string values (already-typed
// numbers, bools, nested structures, nil) pass through unchanged — coercion
// only ever rewrites strings.
func Value(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return String(s)
}

// String attempts, in order, to parse s as datetime, uuid, ip, bool, int,
// float. A null-literal spelling (per typeinfer.IsNullLiteral) returns nil.
// The first type that matches rewrites the value; otherwise s is returned
// unchanged as a string.
func String(s string) interface{} {
	if typeinfer.IsNullLiteral(s) {
		return nil
	}
	if t, ok := parseDateTime(s); ok {
		return t
	}
	if u, ok := parseUUID(s); ok {
		return u
	}
	if ip, ok := parseIP(s); ok {
		return ip
	}
	if b, ok := parseBool(s); ok {
		return b
	}
	if i, ok := parseInt(s); ok {
		return i
	}
	if f, ok := parseFloat(s); ok {
		return f
	}
	return s
}

func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseUUID(s string) (uuid.UUID, bool) {
	if !typeinfer.IsUUID(s) {
		return uuid.UUID{}, false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, false
	}
	return u, true
}

func parseIP(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	default:
		return false, false
	}
}

func parseInt(s string) (int64, bool) {
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
