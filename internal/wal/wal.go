// Package wal implements the write-ahead log described in spec section
// 3/4.8/6: an append-only, newline-delimited JSON file of normalized
// records awaiting flush. It has no single teacher file to adapt (the
// teacher stages mutations in a Postgres table, not a flat file) but
// mirrors the shape of the teacher's types.Stager contract
// (Store/Select/Retire) one-for-one, backed by a file instead of a
// staging table, and uses the same logrus/pkg/errors idiom throughout.
package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajmodi8905/adaptive-sink/internal/metrics"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
)

// Log is the write-ahead log. The orchestrator is its sole owner; per
// spec section 5 it is never shared across producer goroutines except
// through the orchestrator's own mutex.
type Log struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if necessary) the WAL file at path.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening wal file %s", path)
	}
	l := &Log{path: path, file: f}
	l.reportSize()
	return l, nil
}

// Append writes one normalized record as a JSON line and fsyncs before
// returning, so the caller may safely acknowledge ingest() only after
// Append succeeds (spec section 4.8).
func (l *Log) Append(rec record.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(rec.ToRaw())
	if err != nil {
		return errors.Wrap(err, "marshaling record for wal append")
	}
	line = append(line, '\n')

	if _, err := l.file.Seek(0, os.SEEK_END); err != nil {
		return errors.Wrap(err, "seeking to wal end")
	}
	if _, err := l.file.Write(line); err != nil {
		return errors.Wrap(err, "writing wal line")
	}
	if err := l.file.Sync(); err != nil {
		return errors.Wrap(err, "fsyncing wal")
	}
	l.reportSize()
	return nil
}

// ReadAll replays every record currently in the WAL, in append order. A
// corrupt line is skipped with a log entry; recovery does not abort
// (spec section 7).
func (l *Log) ReadAll() ([]record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Seek(0, os.SEEK_SET); err != nil {
		return nil, errors.Wrap(err, "seeking to wal start")
	}

	var out []record.Record
	scanner := bufio.NewScanner(l.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			log.WithError(err).Warnf("skipping corrupt wal line %d", lineNo)
			continue
		}
		out = append(out, record.FromRaw(raw))
	}
	if err := scanner.Err(); err != nil {
		return out, errors.Wrap(err, "scanning wal")
	}
	return out, nil
}

// Truncate resets the WAL to empty by truncating its length to zero
// (never delete-and-recreate), so that any reader holding the path sees
// a consistent empty file rather than a missing one (spec section 6).
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncating wal")
	}
	if _, err := l.file.Seek(0, os.SEEK_SET); err != nil {
		return errors.Wrap(err, "seeking to wal start after truncate")
	}
	l.reportSize()
	return nil
}

// reportSize publishes the WAL's current size to the WALBytes gauge. The
// caller must already hold l.mu.
func (l *Log) reportSize() {
	info, err := l.file.Stat()
	if err != nil {
		return
	}
	metrics.WALBytes.Set(float64(info.Size()))
}

// Size returns the current size in bytes of the WAL file.
func (l *Log) Size() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := l.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "statting wal")
	}
	return info.Size(), nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
