package stats

import "github.com/rajmodi8905/adaptive-sink/internal/record"

// Analyzer owns the cumulative FieldStats table and total_records_seen
// counter (spec section 3/4.2). It is read-only during a flush except
// for the Update call at the start of the flush pipeline (spec section
// 3, "Ownership").
type Analyzer struct {
	fields           map[string]*FieldStats
	totalRecordsSeen int64
}

// NewAnalyzer builds an empty Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{fields: make(map[string]*FieldStats)}
}

// TotalRecordsSeen returns the cumulative number of records the analyzer
// has observed across all batches.
func (a *Analyzer) TotalRecordsSeen() int64 {
	return a.totalRecordsSeen
}

// Fields returns the live stats table, keyed by canonical field name.
// Callers (the classifier) must treat it as read-only.
func (a *Analyzer) Fields() map[string]*FieldStats {
	return a.fields
}

// Get returns the stats for one field, or nil if the field has never
// been observed.
func (a *Analyzer) Get(field string) *FieldStats {
	return a.fields[field]
}

// Update folds a batch of normalized records into the stats table. The
// batch counts toward total_records_seen exactly once, regardless of how
// many distinct fields appear across the batch.
func (a *Analyzer) Update(batch []record.Record) {
	a.totalRecordsSeen += int64(len(batch))
	for _, rec := range batch {
		a.observeRecord(rec)
	}
}

func (a *Analyzer) observeRecord(rec record.Record) {
	for field, v := range rec {
		a.observe(field, v)
		if probed := record.ProbeFields(field, v); len(probed) > 0 {
			for subField, subValue := range probed {
				a.observe(subField, subValue)
			}
		}
	}
}

// observe folds a single field/value pair into that field's FieldStats,
// creating the entry on first sight; entries are never deleted (spec
// section 3, "Lifecycle").
func (a *Analyzer) observe(field string, v record.Value) {
	fs, ok := a.fields[field]
	if !ok {
		fs = newFieldStats()
		a.fields[field] = fs
	}

	if v.IsNull() {
		fs.NullCount++
		fs.TypeCounts[record.KindNull]++
		return
	}

	fs.PresenceCount++
	fs.TypeCounts[v.Kind]++
	if v.Kind.IsNested() {
		fs.IsNested = true
	}
	fs.insertUnique(v)
	fs.addSample(v)
}

// LoadSnapshot restores the analyzer's state from persisted snapshots,
// e.g. on orchestrator startup.
func (a *Analyzer) LoadSnapshot(totalRecordsSeen int64, fields map[string]Snapshot) {
	a.totalRecordsSeen = totalRecordsSeen
	a.fields = make(map[string]*FieldStats, len(fields))
	for name, snap := range fields {
		a.fields[name] = FromSnapshot(snap)
	}
}

// Snapshot returns a persistable view of every field's stats.
func (a *Analyzer) Snapshot() map[string]Snapshot {
	out := make(map[string]Snapshot, len(a.fields))
	for name, fs := range a.fields {
		out[name] = fs.Snapshot()
	}
	return out
}
