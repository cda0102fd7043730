// Package stats maintains cumulative, per-field observation statistics
// used by package classify to place and type each field. It has no
// teacher analogue in the corpus (the teacher ingests already-typed CDC
// mutations, not schema-less documents needing inference); it is built
// directly from spec.md sections 3 and 4.2.
package stats

import "github.com/rajmodi8905/adaptive-sink/internal/record"

// uniqueValuesCap bounds memory for the unique_values set per field.
// Inserts beyond the cap are silently dropped; this is part of the
// contract (spec section 9) and must never be silently raised.
const uniqueValuesCap = 1000

// sampleValuesCap bounds the number of first-seen example values kept
// per field.
const sampleValuesCap = 10

// FieldStats is the cumulative observation record for one canonical
// field name.
type FieldStats struct {
	PresenceCount int64
	NullCount     int64
	TypeCounts    map[record.Kind]int64
	IsNested      bool
	SampleValues  []record.Value

	uniqueValues map[string]struct{}
}

// newFieldStats builds an empty FieldStats ready for accumulation.
func newFieldStats() *FieldStats {
	return &FieldStats{
		TypeCounts:   make(map[record.Kind]int64),
		uniqueValues: make(map[string]struct{}),
	}
}

// UniqueCount returns the number of distinct values observed, capped at
// uniqueValuesCap.
func (f *FieldStats) UniqueCount() int {
	return len(f.uniqueValues)
}

// DominantType returns the most frequently observed type. Ties are
// broken by the lowest Kind value, which keeps the result deterministic;
// in practice a genuine tie means type_stability is already below the
// classifier's threshold, so the tie-break never changes a placement
// decision.
func (f *FieldStats) DominantType() record.Kind {
	var best record.Kind
	var bestCount int64 = -1
	for k := record.KindNull; k <= record.KindObject; k++ {
		if c := f.TypeCounts[k]; c > bestCount {
			best, bestCount = k, c
		}
	}
	return best
}

// TypeStability is type_counts[dominant]/sum(type_counts).
func (f *FieldStats) TypeStability() float64 {
	total := f.typeTotal()
	if total == 0 {
		return 0
	}
	return float64(f.TypeCounts[f.DominantType()]) / float64(total)
}

func (f *FieldStats) typeTotal() int64 {
	var total int64
	for _, c := range f.TypeCounts {
		total += c
	}
	return total
}

// UniqueRatio is |unique_values|/presence_count; with the set capped,
// this saturates at cap/presence_count for high-cardinality fields.
func (f *FieldStats) UniqueRatio() float64 {
	if f.PresenceCount == 0 {
		return 0
	}
	return float64(f.UniqueCount()) / float64(f.PresenceCount)
}

// PresenceRatio is presence_count/total_records_seen.
func (f *FieldStats) PresenceRatio(totalRecordsSeen int64) float64 {
	if totalRecordsSeen == 0 {
		return 0
	}
	return float64(f.PresenceCount) / float64(totalRecordsSeen)
}

// insertUnique adds a value's kind-qualified string form to the unique
// set, subject to the cap; once the set holds uniqueValuesCap entries,
// further values are dropped without notice.
func (f *FieldStats) insertUnique(v record.Value) {
	if len(f.uniqueValues) >= uniqueValuesCap {
		return
	}
	key := v.Kind.String() + ":" + v.String()
	f.uniqueValues[key] = struct{}{}
}

func (f *FieldStats) addSample(v record.Value) {
	if len(f.SampleValues) >= sampleValuesCap {
		return
	}
	f.SampleValues = append(f.SampleValues, v)
}

// Snapshot is an immutable, JSON-friendly view of a FieldStats, used by
// package metadata for persistence (sets serialize as arrays, per spec
// section 6).
type Snapshot struct {
	PresenceCount int64              `json:"presence_count"`
	NullCount     int64              `json:"null_count"`
	TypeCounts    map[string]int64   `json:"type_counts"`
	UniqueValues  []string           `json:"unique_values"`
	IsNested      bool               `json:"is_nested"`
	SampleValues  []string           `json:"sample_values"`
}

// Snapshot converts the live FieldStats into its persisted form.
func (f *FieldStats) Snapshot() Snapshot {
	typeCounts := make(map[string]int64, len(f.TypeCounts))
	for k, c := range f.TypeCounts {
		typeCounts[k.String()] = c
	}
	unique := make([]string, 0, len(f.uniqueValues))
	for k := range f.uniqueValues {
		unique = append(unique, k)
	}
	samples := make([]string, len(f.SampleValues))
	for i, v := range f.SampleValues {
		samples[i] = v.String()
	}
	return Snapshot{
		PresenceCount: f.PresenceCount,
		NullCount:     f.NullCount,
		TypeCounts:    typeCounts,
		UniqueValues:  unique,
		IsNested:      f.IsNested,
		SampleValues:  samples,
	}
}

// FromSnapshot restores a FieldStats from its persisted form, e.g. on
// orchestrator startup.
func FromSnapshot(s Snapshot) *FieldStats {
	f := newFieldStats()
	f.PresenceCount = s.PresenceCount
	f.NullCount = s.NullCount
	f.IsNested = s.IsNested
	for k, c := range s.TypeCounts {
		f.TypeCounts[kindFromString(k)] = c
	}
	for _, u := range s.UniqueValues {
		f.uniqueValues[u] = struct{}{}
	}
	for _, s := range s.SampleValues {
		f.SampleValues = append(f.SampleValues, record.StrValue(s))
	}
	return f
}

func kindFromString(s string) record.Kind {
	for k := record.KindNull; k <= record.KindObject; k++ {
		if k.String() == s {
			return k
		}
	}
	return record.KindStr
}
