// Package metadata persists pipeline state, field statistics, and
// placement decisions under the metadata directory (spec section 6). All
// files are written via write-to-temp + rename for atomicity, and it
// reads a metadata read failure at startup as a cold start rather than a
// fatal error (spec section 7).
package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/rajmodi8905/adaptive-sink/internal/stats"
)

const (
	decisionsFile  = "decisions.json"
	fieldStatsFile = "field_stats.json"
	stateFile      = "state.json"
)

// State is the persisted pipeline state (spec section 3).
type State struct {
	TotalRecordsProcessed int64     `json:"total_records_processed"`
	LastFlushTime         time.Time `json:"last_flush_time"`
	Version               int       `json:"version"`
}

// decisionDoc mirrors classify.Decision for JSON persistence; classify
// types aren't tagged directly so the canonical type and backend render
// as their String() form rather than raw ints.
type decisionDoc struct {
	Backend       string `json:"backend"`
	CanonicalType string `json:"canonical_type"`
	SQLType       string `json:"sql_type"`
	IsNullable    bool   `json:"is_nullable"`
	IsUnique      bool   `json:"is_unique"`
	IsPrimaryKey  bool   `json:"is_primary_key"`
	Reason        string `json:"reason"`
}

// Store owns the four metadata files under a directory.
type Store struct {
	dir string
}

// New builds a Store rooted at dir. The directory must already exist.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Load reads decisions, stats, and state from disk. A missing, unreadable
// or corrupt file is treated as a cold start for that file: zero-value
// defaults are returned rather than failing startup (spec section 7). An
// unreadable or corrupt file is logged; a missing one is not.
func (s *Store) Load() (map[string]classify.Decision, map[string]stats.Snapshot, State, error) {
	decisions := s.loadDecisions()
	fieldStats := s.loadFieldStats()
	state := s.loadState()
	return decisions, fieldStats, state, nil
}

func (s *Store) loadDecisions() map[string]classify.Decision {
	var docs map[string]decisionDoc
	if !s.readJSON(decisionsFile, &docs) {
		return map[string]classify.Decision{}
	}
	out := make(map[string]classify.Decision, len(docs))
	for name, d := range docs {
		out[name] = classify.Decision{
			Field:         name,
			Backend:       backendFromString(d.Backend),
			CanonicalType: kindFromString(d.CanonicalType),
			SQLType:       d.SQLType,
			IsNullable:    d.IsNullable,
			IsUnique:      d.IsUnique,
			IsPrimaryKey:  d.IsPrimaryKey,
			Reason:        d.Reason,
		}
	}
	return out
}

func (s *Store) loadFieldStats() map[string]stats.Snapshot {
	var snaps map[string]stats.Snapshot
	if !s.readJSON(fieldStatsFile, &snaps) {
		return map[string]stats.Snapshot{}
	}
	return snaps
}

func (s *Store) loadState() State {
	var st State
	if !s.readJSON(stateFile, &st) {
		return State{}
	}
	return st
}

// readJSON reads and unmarshals path into dst, returning false if the
// file is absent, unreadable or unparsable. Only the unreadable and
// unparsable cases are logged.
func (s *Store) readJSON(name string, dst any) bool {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("treating %s as cold start", name)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.WithError(err).Warnf("corrupt %s, treating as cold start", name)
		return false
	}
	return true
}

// Save persists decisions, stats, and state, each atomically.
func (s *Store) Save(decisions map[string]classify.Decision, fieldStats map[string]stats.Snapshot, state State) error {
	docs := make(map[string]decisionDoc, len(decisions))
	for name, d := range decisions {
		docs[name] = decisionDoc{
			Backend:       d.Backend.String(),
			CanonicalType: d.CanonicalType.String(),
			SQLType:       d.SQLType,
			IsNullable:    d.IsNullable,
			IsUnique:      d.IsUnique,
			IsPrimaryKey:  d.IsPrimaryKey,
			Reason:        d.Reason,
		}
	}
	if err := s.writeJSON(decisionsFile, docs); err != nil {
		return errors.Wrap(err, "saving decisions")
	}
	if err := s.writeJSON(fieldStatsFile, fieldStats); err != nil {
		return errors.Wrap(err, "saving field stats")
	}
	if err := s.writeJSON(stateFile, state); err != nil {
		return errors.Wrap(err, "saving state")
	}
	return nil
}

// writeJSON marshals v and writes it to name under dir via
// write-to-temp-then-rename, so a reader never observes a partial file.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshaling %s", name)
	}

	finalPath := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", name)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing temp file for %s", name)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "fsyncing temp file for %s", name)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing temp file for %s", name)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming temp file into place for %s", name)
	}
	return nil
}

func backendFromString(s string) classify.Backend {
	switch s {
	case "SQL":
		return classify.BackendSQL
	case "BOTH":
		return classify.BackendBoth
	default:
		return classify.BackendDoc
	}
}

func kindFromString(s string) record.Kind {
	for k := record.KindNull; k <= record.KindObject; k++ {
		if k.String() == s {
			return k
		}
	}
	return record.KindStr
}
