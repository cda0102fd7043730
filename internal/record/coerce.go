package record

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// nullLiterals are the string forms that count as null in addition to an
// actual JSON null, per spec section 3 ("these are explicit design
// choices, not coincidence").
var nullLiterals = map[string]bool{
	"":     true,
	"null": true,
	"none": true,
}

var uuidPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

var boolLiterals = map[string]bool{
	"true": true, "yes": true, "1": true,
	"false": false, "no": false, "0": false,
}

// dateTimeLayouts are attempted in order; the first successful parse
// wins. All are ISO 8601 variants, with or without a timezone offset.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// isNullLiteral reports whether s is one of the case-insensitive null
// sentinels.
func isNullLiteral(s string) bool {
	return nullLiterals[strings.ToLower(s)]
}

// parseDateTime attempts every layout in dateTimeLayouts, returning the
// parsed instant and true on success. A bare date ("2006-01-02") is
// interpreted as UTC midnight.
func parseDateTime(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseIP recognizes both v4 and v6 literal addresses.
func parseIP(s string) (string, bool) {
	if net.ParseIP(s) == nil {
		return "", false
	}
	return s, true
}

// parseUUID recognizes the canonical 8-4-4-4-12 hex form.
func parseUUID(s string) (string, bool) {
	if !uuidPattern.MatchString(s) {
		return "", false
	}
	return strings.ToLower(s), true
}

// parseBool recognizes true|false|yes|no|1|0, case-insensitive.
func parseBool(s string) (bool, bool) {
	b, ok := boolLiterals[strings.ToLower(s)]
	return b, ok
}

// CoerceString attempts, in order, datetime, uuid, ip, bool, int, float.
// The first that matches wins; a string matching none of them is
// returned unchanged as a Str-kind value. Nulls (per isNullLiteral) are
// recognized before any of the above is attempted.
func CoerceString(s string) Value {
	if isNullLiteral(s) {
		return Null
	}
	if t, ok := parseDateTime(s); ok {
		return DateTimeValue(s, t)
	}
	if u, ok := parseUUID(s); ok {
		return UUIDValue(u)
	}
	if ip, ok := parseIP(s); ok {
		return IPValue(ip)
	}
	if b, ok := parseBool(s); ok {
		return BoolValue(b)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatValue(f)
	}
	return StrValue(s)
}
