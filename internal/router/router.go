// Package router splits a batch of normalized records into the
// relational and document halves of spec section 4.6 and dispatches one
// batched call to each backend. Deduplication follows the teacher's
// internal/util/msort.UniqueByKey ("last one wins" by key), generalized
// from CDC mutation keys to the classifier's chosen primary key.
package router

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/document"
	"github.com/rajmodi8905/adaptive-sink/internal/ident"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/rajmodi8905/adaptive-sink/internal/relational"
)

// RelationalTarget is the minimal surface the router needs from the
// relational client, so tests can supply a stub without opening a real
// connection.
type RelationalTarget interface {
	InsertBatch(ctx context.Context, table ident.Table, rows []record.Record, pk string) error
}

// DocumentTarget is the minimal surface the router needs from the
// document client.
type DocumentTarget interface {
	InsertBatch(ctx context.Context, collection string, docs []record.Record, keyField string) error
}

var (
	_ RelationalTarget = (*relational.Client)(nil)
	_ DocumentTarget   = (*document.Client)(nil)
)

// Router splits and dispatches one normalized batch per flush cycle.
type Router struct {
	SQL RelationalTarget
	Doc DocumentTarget
}

// New builds a Router over the given backend clients.
func New(sql RelationalTarget, doc DocumentTarget) *Router {
	return &Router{SQL: sql, Doc: doc}
}

// Dispatch splits batch per decisions and the chosen primary key, then
// upserts the relational half into table and the document half into
// collection, each in a single call (spec section 4.6). It returns the
// count routed to each backend.
func (r *Router) Dispatch(ctx context.Context, batch []record.Record, decisions map[string]classify.Decision, pk string, table ident.Table, collection string) (sqlCount, docCount int, err error) {
	sqlPart, docPart := Split(batch, decisions, pk)
	sqlPart = dedupByKey(sqlPart, pk)

	if len(sqlPart) > 0 {
		if err := r.SQL.InsertBatch(ctx, table, sqlPart, pk); err != nil {
			return 0, 0, errors.Wrap(err, "routing relational batch")
		}
	}
	if len(docPart) > 0 {
		docKey := pk
		if docKey == "" {
			docKey = classify.PickFallbackKey(decisions)
		}
		docPart = dedupByKey(docPart, docKey)
		if err := r.Doc.InsertBatch(ctx, collection, docPart, docKey); err != nil {
			return 0, 0, errors.Wrap(err, "routing document batch")
		}
	}
	return len(sqlPart), len(docPart), nil
}

// Split builds sql_part and doc_part per spec section 4.6: a field goes
// to SQL only if its decision says SQL or BOTH; it goes to DOC if its
// decision says DOC or BOTH, or if there is no decision for it at all
// (unknown fields always land in the document backend). A record missing
// the chosen primary key is omitted from sql_part entirely, since it
// cannot upsert safely, but is still included in doc_part.
func Split(batch []record.Record, decisions map[string]classify.Decision, pk string) (sqlPart, docPart []record.Record) {
	for _, rec := range batch {
		sqlRow := make(record.Record)
		docRow := make(record.Record)
		for field, v := range rec {
			d, known := decisions[field]
			if !known {
				docRow[field] = v
				continue
			}
			if d.Backend.InSQL() {
				sqlRow[field] = v
			}
			if d.Backend.InDoc() {
				docRow[field] = v
			}
		}
		if pk != "" {
			if v, ok := sqlRow[pk]; !ok || v.IsNull() {
				sqlRow = nil
			}
		}
		if len(sqlRow) > 0 {
			sqlPart = append(sqlPart, sqlRow)
		}
		docPart = append(docPart, docRow)
	}
	return sqlPart, docPart
}

// dedupByKey keeps the last record for each distinct value of keyField
// within batch, the way msort.UniqueByKey keeps the latest mutation per
// key; records with no value for keyField (or an empty key) pass through
// unchanged since there is nothing to deduplicate against.
func dedupByKey(batch []record.Record, keyField string) []record.Record {
	if keyField == "" {
		return batch
	}
	seenIdx := make(map[string]int, len(batch))
	out := make([]record.Record, 0, len(batch))
	for _, rec := range batch {
		v, ok := rec[keyField]
		if !ok || v.IsNull() {
			out = append(out, rec)
			continue
		}
		key := v.String()
		if idx, found := seenIdx[key]; found {
			out[idx] = rec
			continue
		}
		seenIdx[key] = len(out)
		out = append(out, rec)
	}
	return out
}
