// Package classify turns accumulated field statistics into placement
// decisions and picks the primary key, per spec section 4.3. It has no
// direct teacher analogue; it borrows the teacher's discipline of naming
// SQL fragments as constants and making tie-breaks deterministic (seen in
// the teacher's resolver, internal/source/cdc/resolver.go).
package classify

import (
	"sort"
	"strings"

	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/rajmodi8905/adaptive-sink/internal/stats"
)

// Backend is where a field's value is stored.
type Backend int

const (
	// BackendSQL places a field in the relational table only.
	BackendSQL Backend = iota
	// BackendDoc places a field in the document collection only.
	BackendDoc
	// BackendBoth duplicates a field to both backends (linking fields).
	BackendBoth
)

func (b Backend) String() string {
	switch b {
	case BackendSQL:
		return "SQL"
	case BackendDoc:
		return "DOC"
	case BackendBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// InSQL reports whether the backend includes the relational side.
func (b Backend) InSQL() bool { return b == BackendSQL || b == BackendBoth }

// InDoc reports whether the backend includes the document side.
func (b Backend) InDoc() bool { return b == BackendDoc || b == BackendBoth }

// Thresholds are the tunable placement/PK constants from spec section 6.
type Thresholds struct {
	MinPresence      float64 // placement.min_presence, default 0.70
	MinTypeStability float64 // placement.min_type_stability, default 0.90
	PKMinUnique      float64 // pk.min_unique, default 0.70
}

// DefaultThresholds returns the documented default constants.
func DefaultThresholds() Thresholds {
	return Thresholds{MinPresence: 0.70, MinTypeStability: 0.90, PKMinUnique: 0.70}
}

// linkingFields are always placed BOTH, rule 1 of spec section 4.3.
var linkingFields = map[string]bool{
	"username":        true,
	"sys_ingested_at": true,
	"t_stamp":         true,
}

// Decision is a PlacementDecision: where a field lives and how.
type Decision struct {
	Field        string
	Backend      Backend
	CanonicalType record.Kind
	SQLType      string
	IsNullable   bool
	IsUnique     bool
	IsPrimaryKey bool
	Reason       string
}

// sqlTypeFor maps a dominant detected type to a relational column type,
// per spec section 4.3.
func sqlTypeFor(k record.Kind) string {
	switch k {
	case record.KindInt:
		return "BIGINT"
	case record.KindFloat:
		return "DOUBLE"
	case record.KindBool:
		return "BOOLEAN"
	case record.KindStr:
		return "VARCHAR(255)"
	case record.KindIP:
		return "VARCHAR(45)"
	case record.KindUUID:
		return "CHAR(36)"
	case record.KindDateTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// Classifier turns a stats table into one Decision per field and picks
// the primary key. It holds no mutable state beyond Thresholds; a fresh
// decision table is produced on every flush (spec section 4.8, step 3).
type Classifier struct {
	Thresholds Thresholds
}

// NewClassifier builds a Classifier with the given thresholds.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{Thresholds: t}
}

// Classify computes a Decision for every field in fields, given the
// cumulative total_records_seen, then picks the primary key among the
// resulting SQL/BOTH-placed fields. It returns the decision table and the
// chosen primary key's field name (empty if none qualifies).
func (c *Classifier) Classify(fields map[string]*stats.FieldStats, totalRecordsSeen int64) (map[string]Decision, string) {
	decisions := make(map[string]Decision, len(fields))
	for name, fs := range fields {
		decisions[name] = c.classifyField(name, fs, totalRecordsSeen)
	}
	pk := c.pickPrimaryKey(decisions, fields, totalRecordsSeen)
	if pk != "" {
		d := decisions[pk]
		d.IsPrimaryKey = true
		decisions[pk] = d
	}
	return decisions, pk
}

func (c *Classifier) classifyField(name string, fs *stats.FieldStats, totalRecordsSeen int64) Decision {
	presenceRatio := fs.PresenceRatio(totalRecordsSeen)
	typeStability := fs.TypeStability()
	dominant := fs.DominantType()

	d := Decision{
		Field:         name,
		CanonicalType: dominant,
		IsNullable:    fs.NullCount > 0 || presenceRatio < 1.0,
	}
	d.IsUnique = fs.UniqueRatio() >= 0.90 && !d.IsNullable

	switch {
	case linkingFields[name]:
		d.Backend = BackendBoth
		d.Reason = "linking field, always duplicated to both backends"
	case fs.IsNested:
		d.Backend = BackendDoc
		d.Reason = "nested (array/object) value, routed to document backend"
	case presenceRatio >= c.Thresholds.MinPresence && typeStability >= c.Thresholds.MinTypeStability:
		d.Backend = BackendSQL
		d.Reason = "stable scalar field above presence/type-stability thresholds"
	default:
		d.Backend = BackendDoc
		d.Reason = "below presence or type-stability threshold for a relational column"
	}

	if d.Backend.InSQL() {
		d.SQLType = sqlTypeFor(dominant)
	}
	return d
}

// LooksLikeTimestamp matches field names the PK picker must exclude, per
// spec section 4.3 rule (d). It is also the exclusion the document-key
// fallback uses (spec section 4.3's "else first available unique
// non-timestamp field" trade-off), so callers outside this package use
// the exported name directly rather than re-implementing the pattern.
func LooksLikeTimestamp(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "_at") ||
		strings.Contains(lower, "time") ||
		strings.Contains(lower, "date")
}

// pkScore implements the PK scoring formula from spec section 4.3.
func pkScore(name string, uniqueRatio float64) float64 {
	score := 0.8 * uniqueRatio
	lower := strings.ToLower(name)
	if strings.Contains(lower, "id") || strings.Contains(lower, "username") || strings.Contains(lower, "key") {
		score += 0.2
	}
	return score
}

// pickPrimaryKey selects the highest-scoring eligible candidate, breaking
// ties lexicographically by field name for determinism (scenario F).
func (c *Classifier) pickPrimaryKey(decisions map[string]Decision, fields map[string]*stats.FieldStats, totalRecordsSeen int64) string {
	type candidate struct {
		name  string
		score float64
	}
	var candidates []candidate

	for name, d := range decisions {
		if !d.Backend.InSQL() {
			continue
		}
		fs := fields[name]
		if fs == nil {
			continue
		}
		if fs.PresenceRatio(totalRecordsSeen) < 1.0 {
			continue
		}
		if fs.UniqueRatio() < c.Thresholds.PKMinUnique {
			continue
		}
		if d.CanonicalType == record.KindArray || d.CanonicalType == record.KindObject {
			continue
		}
		if LooksLikeTimestamp(name) {
			continue
		}
		candidates = append(candidates, candidate{name: name, score: pkScore(name, fs.UniqueRatio())})
	}

	if len(candidates) == 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})
	return candidates[0].name
}

// PickFallbackKey selects the document-backend upsert key to use when no
// relational primary key was chosen: the lexicographically first field
// that is placed in the document backend (DOC or BOTH), is unique, and
// does not look like a timestamp (spec section 4.3's documented "else
// first available unique non-timestamp field, else no upsert key"
// fallback). It returns "" if no candidate qualifies, in which case the
// document backend falls back to plain insert. Both the router's batch
// dispatch and the orchestrator's index-ensure step share this one
// implementation rather than keeping independent copies.
func PickFallbackKey(decisions map[string]Decision) string {
	var best string
	for name, d := range decisions {
		if !d.Backend.InDoc() || !d.IsUnique {
			continue
		}
		if LooksLikeTimestamp(name) {
			continue
		}
		if best == "" || name < best {
			best = name
		}
	}
	return best
}
