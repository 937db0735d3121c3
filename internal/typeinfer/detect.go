package typeinfer

import (
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// nullLiterals covers actual nil plus the string literals spec.md calls out
// as null equivalents, matched case-insensitively.
var nullLiterals = map[string]struct{}{
	"":     {},
	"null": {},
	"none": {},
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Detect returns the detected type of a value that has already passed
// through coercion (i.e. numeric/bool/datetime/uuid/ip strings have already
// been rewritten to their native Go representation). It still recognizes the
// null-literal strings directly, since some callers probe raw leaf values
// before coercion runs.
func Detect(v interface{}) Type {
	switch val := v.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case int, int32, int64:
		return Int
	case float32:
		return Float
	case float64:
		// JSON numbers decode as float64; treat integral values as Int,
		// matching spec.md's "integers prefer int" invariant.
		if val == float64(int64(val)) {
			return Int
		}
		return Float
	case time.Time:
		return DateTime
	case uuid.UUID:
		return UUID
	case netip.Addr:
		return IP
	case []interface{}:
		return Array
	case map[string]interface{}:
		return Object
	case string:
		return detectString(val)
	default:
		return Str
	}
}

func detectString(s string) Type {
	if _, ok := nullLiterals[strings.ToLower(s)]; ok {
		return Null
	}
	if IsDateTime(s) {
		return DateTime
	}
	if IsUUID(s) {
		return UUID
	}
	if IsIP(s) {
		return IP
	}
	if IsBool(s) {
		return Bool
	}
	return Str
}

// IsUUID reports whether s is a canonical 8-4-4-4-12 hex UUID.
func IsUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// IsIP reports whether s parses as an IPv4 or IPv6 address.
func IsIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// IsBool reports whether s is one of the accepted boolean spellings,
// case-insensitively: true|false|yes|no|1|0.
func IsBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "yes", "no", "1", "0":
		return true
	default:
		return false
	}
}

// IsDateTime reports whether s parses as ISO 8601, with or without a
// timezone offset.
func IsDateTime(s string) bool {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
	} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// IsNullLiteral reports whether s (case-insensitive) is one of the explicit
// null-equivalent literals: "", "null", "none".
func IsNullLiteral(s string) bool {
	_, ok := nullLiterals[strings.ToLower(s)]
	return ok
}
