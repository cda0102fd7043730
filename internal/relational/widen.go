package relational

import "strings"

// widenRank orders the scalar types this system ever assigns a column,
// per spec section 4.4: bool < int < float < str(TEXT), with the VARCHAR
// family widening through its own sub-order before reaching TEXT. Types
// not in this table (CHAR(36) for uuid, DATETIME) are fixed points: a decision naming a different dominant type for such
// a column is a backend/type migration handled elsewhere, not a widen.
var widenRank = map[string]int{
	"BOOLEAN":      0,
	"BIGINT":       1,
	"DOUBLE":       2,
	"VARCHAR(45)":  3,
	"VARCHAR(50)":  3,
	"VARCHAR(255)": 4,
	"TEXT":         5,
}

// Widen reports whether newType is a legal widening of oldType, and
// returns the type to modify the column to (newType itself, since the
// classifier always proposes the current dominant type's natural SQL
// type). If newType is not strictly wider (including when the two types
// are unrelated, e.g. CHAR(36) vs DATETIME), Widen returns false and the
// caller must leave the column alone.
func Widen(oldType, newType string) (bool, string) {
	oldType = strings.ToUpper(strings.TrimSpace(oldType))
	newType = strings.ToUpper(strings.TrimSpace(newType))
	if oldType == newType {
		return false, newType
	}
	oldRank, oldKnown := widenRank[oldType]
	newRank, newKnown := widenRank[newType]
	if !oldKnown || !newKnown {
		return false, newType
	}
	if newRank > oldRank {
		return true, newType
	}
	return false, newType
}
