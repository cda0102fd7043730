package record

import log "github.com/sirupsen/logrus"

// flattenState threads the path-collision tracker through a single
// flatten call so that two different dotted paths which collapse onto
// the same canonical name (spec.md Open Question 1, e.g. "meta.x" vs
// "meta_x") are detected and logged rather than silently merged or
// split.
type flattenState struct {
	out         map[string]any
	firstPath   map[string]string // canonical name -> first dotted path seen
	collisions  []string
}

// flattenObject recursively expands nested maps into underscore-joined
// sibling keys. Arrays are never expanded; they are stored as-is at the
// canonical name they appear under. This mirrors the teacher's general
// discipline of keeping a clear boundary between "what gets inspected"
// and "what gets mutated" (design note: flattening is a probe for
// statistics, not a mutation of the stored record, except for this one
// structural step which produces the stored, flat record itself).
func flattenObject(prefix, dottedPrefix string, m map[string]any, st *flattenState) {
	for k, v := range m {
		canonical := k
		dotted := k
		if prefix != "" {
			canonical = prefix + "_" + k
			dotted = dottedPrefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]any:
			flattenObject(canonical, dotted, nested, st)
		default:
			if first, seen := st.firstPath[canonical]; seen && first != dotted {
				st.collisions = append(st.collisions,
					"field \""+canonical+"\" reached from both \""+first+"\" and \""+dotted+"\"; treating as one field")
			} else if !seen {
				st.firstPath[canonical] = dotted
			}
			st.out[canonical] = v
		}
	}
}

// Flatten expands a raw, arbitrarily nested document into a flat
// map[string]any keyed by canonical (dot-free) field name. It returns
// any collision warnings produced along the way; callers typically log
// them and proceed (see Open Question 1 in DESIGN.md).
func Flatten(raw map[string]any) (map[string]any, []string) {
	st := &flattenState{
		out:       make(map[string]any, len(raw)),
		firstPath: make(map[string]string, len(raw)),
	}
	flattenObject("", "", raw, st)
	return st.out, st.collisions
}

// logCollisions emits one warning per detected flatten collision. Split
// out so tests can call Flatten directly without logrus noise.
func logCollisions(warnings []string) {
	for _, w := range warnings {
		log.Warn(w)
	}
}
