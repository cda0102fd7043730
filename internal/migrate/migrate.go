// Package migrate reconciles existing data when a field's backend
// changes (spec section 4.7). It imports both internal/relational and
// internal/document, and is the concrete implementation behind
// relational.MigrationHooks, which exists specifically so the relational
// package itself never has to import this one.
//
// There is no teacher analogue: cdc-sink never moves a column between
// backends. The copy-then-drop shape instead borrows the teacher's
// resolver's acquire-work/do-bounded-work/log-and-continue discipline
// (internal/source/cdc/resolver.go), without the lease, since this
// system runs single-instance (see DESIGN.md's Open Question decision on
// multi-instance coordination).
package migrate

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rajmodi8905/adaptive-sink/internal/document"
	"github.com/rajmodi8905/adaptive-sink/internal/ident"
	"github.com/rajmodi8905/adaptive-sink/internal/relational"
)

// LinkFields are the fields used to correlate a relational row with its
// originating document, per spec section 4.7.
var LinkFields = []string{"username", "sys_ingested_at"}

// Migrator copies data across backends around a column's addition or
// removal, bridging relational.MigrationHooks to the document client.
type Migrator struct {
	Relational *relational.Client
	Document   *document.Client
	Table      ident.Table
	Collection string
}

// New builds a Migrator over the pipeline's two backend clients.
func New(rel *relational.Client, doc *document.Client, table ident.Table, collection string) *Migrator {
	return &Migrator{Relational: rel, Document: doc, Table: table, Collection: collection}
}

// Hooks adapts the Migrator into the relational.MigrationHooks callback
// pair that EnsureTableWithHooks invokes mid-reconciliation.
func (m *Migrator) Hooks() relational.MigrationHooks {
	return relational.MigrationHooks{
		OnColumnAdded:    m.CopyDocToSQL,
		OnColumnDropping: m.CopySQLToDoc,
	}
}

// CopyDocToSQL backfills a newly added SQL column from existing document
// values, keyed by LinkFields. A document missing either link field is
// skipped and logged, never aborting the whole backfill (spec section
// 4.7, error handling per spec section 7's "missing links are skipped
// and logged").
func (m *Migrator) CopyDocToSQL(ctx context.Context, field string) error {
	var rows []map[string]any

	err := m.Document.IterateAll(ctx, m.Collection, func(doc bson.M) error {
		value, hasValue := doc[field]
		if !hasValue || value == nil {
			return nil
		}
		row := make(map[string]any, len(LinkFields)+1)
		for _, link := range LinkFields {
			linkVal, ok := doc[link]
			if !ok {
				log.WithFields(log.Fields{"field": field, "missing_link": link}).
					Warn("skipping document missing link field during doc->sql backfill")
				return nil
			}
			row[link] = linkVal
		}
		row[field] = value
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "scanning document backend to backfill column %s", field)
	}
	if len(rows) == 0 {
		return nil
	}
	return m.Relational.BackfillColumn(ctx, m.Table, field, LinkFields, rows)
}

// CopySQLToDoc reads existing values for field from the relational table
// and $sets them into the matching documents before the column is
// dropped (spec section 4.7).
func (m *Migrator) CopySQLToDoc(ctx context.Context, field string) error {
	rows, err := m.Relational.ReadColumnForMigration(ctx, m.Table, LinkFields, field)
	if err != nil {
		return errors.Wrapf(err, "reading column %s for doc backfill", field)
	}

	for _, row := range rows {
		filter := make(bson.D, 0, len(LinkFields))
		for _, link := range LinkFields {
			filter = append(filter, bson.E{Key: link, Value: row[link]})
		}
		if err := m.Document.SetFields(ctx, m.Collection, filter, bson.M{field: row[field]}); err != nil {
			log.WithError(err).WithField("field", field).
				Warn("failed to backfill document with relational column value before drop")
		}
	}
	return nil
}
