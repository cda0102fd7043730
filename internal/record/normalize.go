package record

import (
	"encoding/json"
	"time"
)

const sysIngestedAt = "sys_ingested_at"

// isoMillis is the ISO 8601 layout used for the injected sys_ingested_at
// timestamp: UTC, millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Normalizer turns raw, arbitrarily nested documents into flat, typed
// Records. Clock is injected so tests can pin the sys_ingested_at value;
// it defaults to time.Now in NewNormalizer.
type Normalizer struct {
	Clock func() time.Time
}

// NewNormalizer builds a Normalizer using the real wall clock.
func NewNormalizer() *Normalizer {
	return &Normalizer{Clock: func() time.Time { return time.Now().UTC() }}
}

// Normalize flattens raw, coerces every leaf, and injects sys_ingested_at
// when absent. It never fails: an unparseable leaf is left as a string.
// Collision warnings (Open Question 1) are logged and also returned so
// callers that want to surface them (e.g. in a flush report) can.
func (n *Normalizer) Normalize(raw map[string]any) (Record, []string) {
	flat, warnings := Flatten(raw)
	logCollisions(warnings)

	rec := make(Record, len(flat)+1)
	for k, v := range flat {
		rec[k] = convertRaw(v)
	}

	if _, ok := rec[sysIngestedAt]; !ok {
		now := n.Clock()
		rec[sysIngestedAt] = DateTimeValue(now.UTC().Format(isoMillis), now.UTC())
	}

	return rec, warnings
}

// convertRaw turns a single raw leaf (or nested array/object element)
// into a typed Value. Strings run through the coercion chain; numbers
// resolve to Int when they carry no fractional part, else Float; arrays
// and objects recurse without flattening, since array contents are never
// flattened (spec section 4.1).
func convertRaw(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case bool:
		return BoolValue(t)
	case string:
		return CoerceString(t)
	case float64:
		return numberValue(t)
	case float32:
		return numberValue(float64(t))
	case int:
		return IntValue(int64(t))
	case int32:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case uint:
		return IntValue(int64(t))
	case uint64:
		return IntValue(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return IntValue(n)
		}
		if f, err := t.Float64(); err == nil {
			return FloatValue(f)
		}
		return StrValue(t.String())
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = convertRaw(item)
		}
		return ArrayValue(items)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = convertRaw(item)
		}
		return ObjectValue(fields)
	default:
		return Null
	}
}

// FromRaw reconstructs a Record from a flat map[string]any that has
// already been through Normalize once (e.g. decoded back from a WAL line
// or from document-backend JSON). It does not flatten nesting and does
// not inject sys_ingested_at; it only restores typed Values, re-running
// the same leaf coercion Normalize uses so that round-tripping through
// JSON (which erases the int/uuid/ip/datetime distinction) recovers the
// original Kind.
func FromRaw(raw map[string]any) Record {
	rec := make(Record, len(raw))
	for k, v := range raw {
		rec[k] = convertRaw(v)
	}
	return rec
}

func numberValue(f float64) Value {
	if f == float64(int64(f)) {
		return IntValue(int64(f))
	}
	return FloatValue(f)
}
