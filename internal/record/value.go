// Package record implements the semantic type system and normalization
// pipeline: turning a raw, arbitrarily nested JSON-like document into a
// flat record of typed values ready for statistics, classification, and
// storage.
//
// The value space is a tagged sum {Null, Bool, Int, Float, Str, DateTime,
// UUID, IP, Array, Object}. Rather than boxing every value into `any`,
// Value carries an explicit Kind discriminator alongside one populated
// payload field, so callers switch on Kind instead of type-asserting an
// interface.
package record

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Kind is a detected semantic type, per spec section 3.
type Kind int

// The full set of detected types. int and float are disjoint; ip
// subsumes v4 and v6; array and object are "nested" kinds.
const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStr
	KindIP
	KindUUID
	KindDateTime
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStr:
		return "str"
	case KindIP:
		return "ip"
	case KindUUID:
		return "uuid"
	case KindDateTime:
		return "datetime"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsNested reports whether the value is an array or object, per the
// is_nested flag in FieldStats.
func (k Kind) IsNested() bool {
	return k == KindArray || k == KindObject
}

// Value is a single detected, typed value. Exactly one payload field is
// meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Int    int64
	Float  float64
	Bool   bool
	Str    string // canonical string form for Str, IP, UUID, DateTime
	Time   time.Time
	Array  []Value
	Object map[string]Value
}

// Null is the shared null value.
var Null = Value{Kind: KindNull}

// IntValue constructs an int-kind value.
func IntValue(n int64) Value { return Value{Kind: KindInt, Int: n} }

// FloatValue constructs a float-kind value.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// BoolValue constructs a bool-kind value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// StrValue constructs a plain string-kind value.
func StrValue(s string) Value { return Value{Kind: KindStr, Str: s} }

// IPValue constructs an ip-kind value, canonical string form.
func IPValue(s string) Value { return Value{Kind: KindIP, Str: s} }

// UUIDValue constructs a uuid-kind value, canonical string form.
func UUIDValue(s string) Value { return Value{Kind: KindUUID, Str: s} }

// DateTimeValue constructs a datetime-kind value carrying both the
// parsed instant and the original (or re-rendered) ISO 8601 string.
func DateTimeValue(s string, t time.Time) Value {
	return Value{Kind: KindDateTime, Str: s, Time: t}
}

// ArrayValue constructs an array-kind value.
func ArrayValue(items []Value) Value { return Value{Kind: KindArray, Array: items} }

// ObjectValue constructs an object-kind value.
func ObjectValue(fields map[string]Value) Value { return Value{Kind: KindObject, Object: fields} }

// IsNull reports whether the value is the null kind.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// String renders the value's canonical string form. For Int/Float/Bool it
// renders the usual textual form; for Str/IP/UUID/DateTime it returns the
// carried string; nested kinds render as JSON-ish debug text (callers
// needing a real serialization should use ToRaw + encoding/json).
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindStr, KindIP, KindUUID, KindDateTime:
		return v.Str
	case KindArray:
		return fmt.Sprintf("%v", v.ToRaw())
	case KindObject:
		return fmt.Sprintf("%v", v.ToRaw())
	default:
		return ""
	}
}

// ToRaw converts the Value back into a plain any (the inverse of
// convertRaw), useful for re-marshaling into JSON for the document
// backend or for round-trip testing.
func (v Value) ToRaw() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindStr, KindIP, KindUUID, KindDateTime:
		return v.Str
	case KindArray:
		out := make([]any, len(v.Array))
		for i, item := range v.Array {
			out[i] = item.ToRaw()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.Object))
		for k, item := range v.Object {
			out[k] = item.ToRaw()
		}
		return out
	default:
		return nil
	}
}

// Record is a flat, canonical-keyed mapping from field name to typed
// value, as produced by Normalize. Keys are dot-free.
type Record map[string]Value

// ToRaw converts a Record back into a plain map[string]any, e.g. to feed
// it back through Normalize for an idempotence check, or to hand a
// document-backend value to the mongo driver.
func (r Record) ToRaw() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.ToRaw()
	}
	return out
}

// SortedKeys returns the record's keys in lexicographic order, useful
// anywhere output must be deterministic (DDL column ordering, test
// fixtures).
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
