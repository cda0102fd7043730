// Package orchestrator is the front door described in spec section 4.8:
// ingest/ingest_batch/flush/close, the buffer, the WAL, and the single
// mutex serializing all of it. There is no single teacher file this
// mirrors — cdc-sink's equivalent loop is split across its logical
// replication provider and stage applier — but the "one mutex, drain a
// snapshot, process it, ack or retain" shape is the same discipline the
// teacher's resolver and stage appliers both follow.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/document"
	"github.com/rajmodi8905/adaptive-sink/internal/ident"
	"github.com/rajmodi8905/adaptive-sink/internal/metadata"
	"github.com/rajmodi8905/adaptive-sink/internal/metrics"
	"github.com/rajmodi8905/adaptive-sink/internal/migrate"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/rajmodi8905/adaptive-sink/internal/relational"
	"github.com/rajmodi8905/adaptive-sink/internal/router"
	"github.com/rajmodi8905/adaptive-sink/internal/stats"
	"github.com/rajmodi8905/adaptive-sink/internal/wal"
)

// FlushResult reports what a flush accomplished, per spec section 6's
// flush() -> {records_processed, decisions_sql, decisions_doc}.
type FlushResult struct {
	RecordsProcessed int
	DecisionsSQL     int
	DecisionsDoc     int
}

// Status is the get_status() response from spec section 6, supplemented
// with wal_bytes and last_error since an operator driving this from a
// CLI needs to see WAL growth and the most recent failure without
// reading logs.
type Status struct {
	BufferSize            int
	TotalRecordsProcessed int64
	LastFlushTime         time.Time
	WALBytes              int64
	LastError             string
}

// Pipeline owns the buffer, WAL, connections, and the mutex serializing
// ingest against flush (spec section 5).
type Pipeline struct {
	mu sync.Mutex

	normalizer *record.Normalizer
	analyzer   *stats.Analyzer
	classifier *classify.Classifier

	relational *relational.Client
	document   *document.Client
	router     *router.Router
	migrator   *migrate.Migrator

	wal      *wal.Log
	metadata *metadata.Store

	table      ident.Table
	collection string

	buffer               []record.Record
	bufferSize           int
	bufferTimeout        time.Duration
	lastFlush            time.Time
	totalRecordsProcessed int64
	lastError            error
}

// New wires a Pipeline from already-open backend clients and a metadata
// directory. Callers typically build this from cmd/ingestd after
// resolving Config.
func New(cfg Config, rel *relational.Client, doc *document.Client) *Pipeline {
	table := ident.NewTable(cfg.TableName)
	mig := migrate.New(rel, doc, table, cfg.TableName)

	return &Pipeline{
		normalizer:    record.NewNormalizer(),
		analyzer:      stats.NewAnalyzer(),
		classifier:    classify.NewClassifier(cfg.Thresholds),
		relational:    rel,
		document:      doc,
		router:        router.New(rel, doc),
		migrator:      mig,
		metadata:      metadata.New(cfg.MetadataDir),
		table:         table,
		collection:    cfg.TableName,
		bufferSize:    cfg.BufferSize,
		bufferTimeout: time.Duration(cfg.BufferTimeoutSeconds) * time.Second,
	}
}

// Open opens the WAL at walPath; the caller must do this (rather than
// New) so tests can point it at a temp directory.
func (p *Pipeline) Open(walPath string) error {
	l, err := wal.Open(walPath)
	if err != nil {
		return err
	}
	p.wal = l
	return nil
}

// Recover implements spec section 4.8's startup recovery: load
// decisions/stats/state from disk, and if the WAL is non-empty, push its
// records straight onto the buffer (bypassing normalization and the WAL
// append, since both already happened before the crash) and flush
// immediately.
func (p *Pipeline) Recover(ctx context.Context) error {
	decisions, fieldStats, state, err := p.metadata.Load()
	if err != nil {
		return errors.Wrap(err, "loading metadata")
	}
	p.analyzer.LoadSnapshot(state.TotalRecordsProcessed, fieldStats)
	p.totalRecordsProcessed = state.TotalRecordsProcessed
	p.lastFlush = state.LastFlushTime
	_ = decisions // decisions are recomputed fresh on the next flush (spec 4.8 step 3)

	records, err := p.wal.ReadAll()
	if err != nil {
		return errors.Wrap(err, "replaying wal")
	}
	if len(records) == 0 {
		return nil
	}

	log.WithField("count", len(records)).Info("replaying wal from previous run")
	p.mu.Lock()
	p.buffer = append(p.buffer, records...)
	p.mu.Unlock()

	_, err = p.Flush(ctx)
	return err
}

// Ingest normalizes raw, appends it to the WAL (fsync before
// acknowledging), appends it to the buffer, and triggers a flush if the
// buffer is full or the flush timeout has elapsed (spec section 4.8). A
// raw value that is not a top-level object is rejected before the WAL
// append (spec section 7).
func (p *Pipeline) Ingest(ctx context.Context, raw map[string]any) error {
	return p.IngestBatch(ctx, []map[string]any{raw})
}

// IngestBatch is Ingest for many raw records, sharing one buffer-trigger
// check at the end so a caller submitting many records at once doesn't
// pay for a flush evaluation per record.
func (p *Pipeline) IngestBatch(ctx context.Context, rawBatch []map[string]any) error {
	p.mu.Lock()

	for _, raw := range rawBatch {
		rec, _ := p.normalizer.Normalize(raw)
		if err := p.wal.Append(rec); err != nil {
			p.mu.Unlock()
			return errors.Wrap(err, "appending to wal")
		}
		p.buffer = append(p.buffer, rec)
	}

	shouldFlush := len(p.buffer) >= p.bufferSize ||
		(p.bufferTimeout > 0 && !p.lastFlush.IsZero() && time.Since(p.lastFlush) >= p.bufferTimeout)
	p.mu.Unlock()

	if shouldFlush {
		_, err := p.Flush(ctx)
		return err
	}
	return nil
}

// Flush runs the seven-step pipeline from spec section 4.8, serialized
// by p.mu: snapshot, update stats, classify, reconcile schema, route,
// persist metadata, truncate the WAL. A failure in schema reconciliation
// or routing re-enqueues the snapshot at the head of the buffer and
// skips metadata persistence and WAL truncation, so a subsequent crash
// still replays the batch.
func (p *Pipeline) Flush(ctx context.Context) (FlushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	defer func() { metrics.FlushDuration.Observe(time.Since(start).Seconds()) }()

	if len(p.buffer) == 0 {
		return FlushResult{}, nil
	}

	snapshot := p.buffer
	p.buffer = nil

	// step 2: analyzer updates stats from the snapshot.
	p.analyzer.Update(snapshot)

	// step 3: classifier recomputes decisions for every known field.
	decisions, pk := p.classifier.Classify(p.analyzer.Fields(), p.analyzer.TotalRecordsSeen())

	// step 4: ensure_table (may trigger the migrator).
	if err := p.relational.EnsureTableWithHooks(ctx, p.table, decisions, p.migrator.Hooks()); err != nil {
		return p.failFlush(snapshot, err, "ensuring relational table")
	}
	if err := p.document.EnsureIndexes(ctx, p.collection, docKey(pk, decisions)); err != nil {
		return p.failFlush(snapshot, err, "ensuring document index")
	}

	// step 5: router splits and upserts both backends.
	sqlCount, docCount, err := p.router.Dispatch(ctx, snapshot, decisions, pk, p.table, p.collection)
	if err != nil {
		return p.failFlush(snapshot, err, "dispatching batch")
	}

	// step 6: metadata store persists decisions, stats, and state.
	p.totalRecordsProcessed += int64(len(snapshot))
	p.lastFlush = time.Now().UTC()
	state := metadata.State{
		TotalRecordsProcessed: p.totalRecordsProcessed,
		LastFlushTime:         p.lastFlush,
		Version:               1,
	}
	if err := p.metadata.Save(decisions, p.analyzer.Snapshot(), state); err != nil {
		return p.failFlush(snapshot, err, "persisting metadata")
	}

	// step 7: wal is truncated.
	if err := p.wal.Truncate(); err != nil {
		return p.failFlush(snapshot, err, "truncating wal")
	}

	p.lastError = nil
	metrics.RecordsRouted.WithLabelValues(p.table.Raw(), "sql").Add(float64(sqlCount))
	metrics.RecordsRouted.WithLabelValues(p.collection, "doc").Add(float64(docCount))

	return FlushResult{RecordsProcessed: len(snapshot), DecisionsSQL: sqlCount, DecisionsDoc: docCount}, nil
}

// failFlush re-enqueues snapshot at the head of the buffer and records
// the error, per spec section 4.8's failure semantics.
func (p *Pipeline) failFlush(snapshot []record.Record, cause error, step string) (FlushResult, error) {
	p.buffer = append(snapshot, p.buffer...)
	err := errors.Wrap(cause, step)
	p.lastError = err
	metrics.FlushErrors.Inc()
	log.WithError(err).Warn("flush failed, wal and buffer retained")
	return FlushResult{}, err
}

// docKey picks the document upsert key: the relational primary key if
// one was chosen, else the same unique, non-timestamp fallback field the
// router uses (classify.PickFallbackKey), so the index ensured here
// matches the key the router actually upserts on.
func docKey(pk string, decisions map[string]classify.Decision) string {
	if pk != "" {
		return pk
	}
	return classify.PickFallbackKey(decisions)
}

// GetDecisions returns the current placement decision table.
func (p *Pipeline) GetDecisions() map[string]classify.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	decisions, _ := p.classifier.Classify(p.analyzer.Fields(), p.analyzer.TotalRecordsSeen())
	return decisions
}

// GetFieldStats returns a JSON-friendly snapshot of every field's stats.
func (p *Pipeline) GetFieldStats() map[string]stats.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analyzer.Snapshot()
}

// GetStatus returns the current buffer/throughput/error status.
func (p *Pipeline) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var walBytes int64
	if p.wal != nil {
		walBytes, _ = p.wal.Size()
	}
	s := Status{
		BufferSize:            len(p.buffer),
		TotalRecordsProcessed: p.totalRecordsProcessed,
		LastFlushTime:         p.lastFlush,
		WALBytes:              walBytes,
	}
	if p.lastError != nil {
		s.LastError = p.lastError.Error()
	}
	return s
}

// Close waits for any in-flight flush (held by the mutex), drains the
// buffer with a final flush, then releases connections (spec section
// 5's close() contract).
func (p *Pipeline) Close(ctx context.Context) error {
	if _, err := p.Flush(ctx); err != nil {
		log.WithError(err).Warn("final flush on close failed; wal retained for next startup")
	}

	var errs []error
	if err := p.wal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.relational.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.document.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Errorf("errors closing pipeline: %v", errs)
	}
	return nil
}
