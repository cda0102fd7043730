// Package relational owns the relational (MySQL) connection and
// reconciles the target table against the classifier's decisions (spec
// section 4.4). Connection handling is adapted from the teacher's
// internal/util/stdpool.OpenMySQLAsTarget (connect, ping, same
// go-sql-driver/mysql registration; no ping retry or version probe);
// statement
// building is adapted from the teacher's sink.go upsert/delete builders
// (strings.Builder, positional placeholders, one statement per batch).
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/ident"
	"github.com/rajmodi8905/adaptive-sink/internal/metrics"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
)

// Querier is the minimal surface this package needs from *sql.DB,
// following the teacher's internal/types.TargetQuerier discipline of
// depending on the smallest interface a caller actually needs.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ Querier = (*sql.DB)(nil)

// DefaultDeadline is the default timeout applied to every relational
// operation (DDL and batch upsert), per spec section 5.
const DefaultDeadline = 30 * time.Second

// Client owns the relational connection pool and every DDL/DML
// operation against it.
type Client struct {
	db      Querier
	close   func() error
	Deadline time.Duration
}

// Open connects to MySQL, pings it once, and returns a ready Client. A
// failed ping is returned as an error; it is not retried.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?sql_mode=ansi&parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening mysql connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not ping relational backend")
	}
	log.WithField("host", cfg.Host).Info("connected to relational backend")

	return &Client{db: db, close: db.Close, Deadline: DefaultDeadline}, nil
}

// WrapQuerier builds a Client around an already-open Querier, for tests
// that supply a fake or an in-memory sql.DB (e.g. sqlite via a driver
// shim). The returned Client's Close is a no-op.
func WrapQuerier(q Querier) *Client {
	return &Client{db: q, close: func() error { return nil }, Deadline: DefaultDeadline}
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.close()
}

// ColumnInfo describes one existing relational column.
type ColumnInfo struct {
	Name     string
	SQLType  string
	Nullable bool
	IsPK     bool
}

// ListColumns returns the current INFORMATION_SCHEMA view of table.
func (c *Client) ListColumns(ctx context.Context, table ident.Table) ([]ColumnInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table.Name.Raw())
	if err != nil {
		return nil, errors.Wrap(err, "listing columns")
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var name, sqlType, nullable, key string
		if err := rows.Scan(&name, &sqlType, &nullable, &key); err != nil {
			return nil, errors.Wrap(err, "scanning column info")
		}
		out = append(out, ColumnInfo{
			Name:     name,
			SQLType:  strings.ToUpper(sqlType),
			Nullable: strings.EqualFold(nullable, "YES"),
			IsPK:     key == "PRI",
		})
	}
	return out, rows.Err()
}

// tableExists reports whether table already exists in the database.
func (c *Client) tableExists(ctx context.Context, table ident.Table) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table.Name.Raw()).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "checking table existence")
	}
	return count > 0, nil
}

// MigrationHooks let the relational client trigger cross-backend data
// moves at the right point in ensure_table without importing the
// document package itself (same small-interface discipline as the
// teacher's types.Stager/types.Applier boundary).
type MigrationHooks struct {
	// OnColumnAdded runs after every column added to an existing table
	// (for example for a field that was previously DOC-only), so existing
	// document data can be backfilled into the new column.
	OnColumnAdded func(ctx context.Context, field string) error
	// OnColumnDropping runs before a column is dropped for a field that
	// moved from SQL to DOC, so its existing values are preserved in the
	// document backend first.
	OnColumnDropping func(ctx context.Context, field string) error
}

// EnsureTable reconciles table against decisions: creating it if absent,
// otherwise diffing INFORMATION_SCHEMA against decisions and adding,
// widening, or migrating-then-dropping columns as needed (spec section
// 4.4). It never drops a column for a field that's simply absent from
// decisions (retention), and it never silently changes an
// already-established primary key.
func (c *Client) EnsureTable(ctx context.Context, table ident.Table, decisions map[string]classify.Decision) error {
	return c.ensureTable(ctx, table, decisions, MigrationHooks{})
}

// EnsureTableWithHooks is EnsureTable plus migration callbacks; see
// MigrationHooks.
func (c *Client) EnsureTableWithHooks(ctx context.Context, table ident.Table, decisions map[string]classify.Decision, hooks MigrationHooks) error {
	return c.ensureTable(ctx, table, decisions, hooks)
}

func (c *Client) ensureTable(ctx context.Context, table ident.Table, decisions map[string]classify.Decision, hooks MigrationHooks) error {
	exists, err := c.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return c.createTable(ctx, table, decisions)
	}

	existing, err := c.ListColumns(ctx, table)
	if err != nil {
		return err
	}
	existingByName := make(map[string]ColumnInfo, len(existing))
	var existingPK string
	for _, col := range existing {
		existingByName[col.Name] = col
		if col.IsPK {
			existingPK = col.Name
		}
	}

	sqlFields := sqlFieldNames(decisions)

	for _, field := range sqlFields {
		d := decisions[field]
		col, ok := existingByName[field]
		if !ok {
			if err := c.addColumn(ctx, table, d); err != nil {
				return err
			}
			if hooks.OnColumnAdded != nil {
				if err := hooks.OnColumnAdded(ctx, field); err != nil {
					log.WithError(err).WithField("field", field).
						Warn("backfilling new sql column from document backend failed")
				}
			}
			continue
		}
		if widened, newType := Widen(col.SQLType, d.SQLType); widened {
			if err := c.modifyColumn(ctx, table, d.Field, newType, d.IsNullable); err != nil {
				return err
			}
		}
	}

	for _, col := range existing {
		d, known := decisions[col.Name]
		if !known {
			// retained: a field no longer observed is never dropped.
			continue
		}
		if d.Backend.InSQL() {
			continue
		}
		if col.IsPK {
			log.WithField("field", col.Name).
				Warn("refusing to drop the established primary key column; operator intervention required")
			continue
		}
		if hooks.OnColumnDropping != nil {
			if err := hooks.OnColumnDropping(ctx, col.Name); err != nil {
				return errors.Wrapf(err, "migrating column %s to document backend before drop", col.Name)
			}
		}
		if err := c.dropColumn(ctx, table, col.Name); err != nil {
			return err
		}
	}

	if pk := primaryKeyField(decisions); pk != "" && existingPK != "" && pk != existingPK {
		log.WithFields(log.Fields{"existing_pk": existingPK, "requested_pk": pk}).
			Warn("primary key change is schema-breaking; skipping until operator intervenes")
	}

	return nil
}

func sqlFieldNames(decisions map[string]classify.Decision) []string {
	names := make([]string, 0, len(decisions))
	for name, d := range decisions {
		if d.Backend.InSQL() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func primaryKeyField(decisions map[string]classify.Decision) string {
	for name, d := range decisions {
		if d.IsPrimaryKey {
			return name
		}
	}
	return ""
}

func (c *Client) createTable(ctx context.Context, table ident.Table, decisions map[string]classify.Decision) error {
	fields := sqlFieldNames(decisions)
	if len(fields) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", table.Quoted())
	pk := primaryKeyField(decisions)
	for i, field := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		d := decisions[field]
		fmt.Fprintf(&b, "%s %s", ident.New(field).Quoted(), columnDDL(d))
	}
	if pk != "" {
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", ident.New(pk).Quoted())
	}
	b.WriteString(")")

	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()
	_, err := c.db.ExecContext(ctx, b.String())
	metrics.DDLOperations.WithLabelValues(table.Raw(), "create").Inc()
	return errors.Wrap(err, "creating table")
}

func columnDDL(d classify.Decision) string {
	var b strings.Builder
	b.WriteString(d.SQLType)
	if d.IsPrimaryKey {
		b.WriteString(" NOT NULL")
	} else if !d.IsNullable {
		b.WriteString(" NOT NULL")
	}
	if d.IsUnique && !d.IsPrimaryKey {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func (c *Client) addColumn(ctx context.Context, table ident.Table, d classify.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		table.Quoted(), ident.New(d.Field).Quoted(), columnDDL(d))
	_, err := c.db.ExecContext(ctx, stmt)
	metrics.DDLOperations.WithLabelValues(table.Raw(), "add_column").Inc()
	return errors.Wrapf(err, "adding column %s", d.Field)
}

func (c *Client) modifyColumn(ctx context.Context, table ident.Table, field, newType string, nullable bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()
	nullClause := "NOT NULL"
	if nullable {
		nullClause = "NULL"
	}
	stmt := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s %s",
		table.Quoted(), ident.New(field).Quoted(), newType, nullClause)
	_, err := c.db.ExecContext(ctx, stmt)
	metrics.DDLOperations.WithLabelValues(table.Raw(), "widen_column").Inc()
	return errors.Wrapf(err, "widening column %s to %s", field, newType)
}

func (c *Client) dropColumn(ctx context.Context, table ident.Table, field string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table.Quoted(), ident.New(field).Quoted())
	_, err := c.db.ExecContext(ctx, stmt)
	metrics.DDLOperations.WithLabelValues(table.Raw(), "drop_column").Inc()
	return errors.Wrapf(err, "dropping column %s", field)
}

// InsertBatch upserts rows into table in a single statement, keyed on pk
// via INSERT ... ON DUPLICATE KEY UPDATE. When pk is empty, a plain
// INSERT is issued instead (spec section 4.4). Statement building
// follows the teacher's sink.go discipline: build with a strings.Builder
// and positional placeholders, one statement for the whole batch.
func (c *Client) InsertBatch(ctx context.Context, table ident.Table, rows []record.Record, pk string) (err error) {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.UpsertDuration.WithLabelValues(table.Raw(), "sql").Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.UpsertErrors.WithLabelValues(table.Raw(), "sql").Inc()
		}
	}()

	columns := batchColumns(rows)
	if len(columns) == 0 {
		return nil
	}

	var b strings.Builder
	var args []any
	fmt.Fprintf(&b, "INSERT INTO %s (", table.Quoted())
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident.New(col).Quoted())
	}
	b.WriteString(") VALUES ")

	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for i, col := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, sqlArg(row[col]))
		}
		b.WriteString(")")
	}

	if pk != "" {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		first := true
		for _, col := range columns {
			if col == pk {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			quoted := ident.New(col).Quoted()
			fmt.Fprintf(&b, "%s = VALUES(%s)", quoted, quoted)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()
	_, execErr := c.db.ExecContext(ctx, b.String(), args...)
	err = errors.Wrap(execErr, "upserting batch")
	return err
}

// ReadColumnForMigration returns, for every row where field is not NULL,
// a map keyed by linkFields plus field itself — the raw material for the
// migrator's SQL -> DOC backfill (spec section 4.7), read before the
// column is dropped.
func (c *Client) ReadColumnForMigration(ctx context.Context, table ident.Table, linkFields []string, field string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	cols := append(append([]string{}, linkFields...), field)
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident.New(col).Quoted())
	}
	fmt.Fprintf(&b, " FROM %s WHERE %s IS NOT NULL", table.Quoted(), ident.New(field).Quoted())

	rows, err := c.db.QueryContext(ctx, b.String())
	if err != nil {
		return nil, errors.Wrapf(err, "reading column %s for migration", field)
	}
	defer rows.Close()

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	var out []map[string]any
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scanning migration row")
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = dest[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// BackfillColumn sets field on every existing row matched by linkFields,
// one UPDATE per row, for the migrator's DOC -> SQL backfill (spec
// section 4.7) after a column has just been added. Rows whose link
// values match nothing in the table are silently no-ops, since the row
// itself may not have made it into the relational backend yet.
func (c *Client) BackfillColumn(ctx context.Context, table ident.Table, field string, linkFields []string, rows []map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.Deadline)
	defer cancel()

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s = ? WHERE ", table.Quoted(), ident.New(field).Quoted())
	for i, link := range linkFields {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s = ?", ident.New(link).Quoted())
	}
	stmt := b.String()

	for _, row := range rows {
		args := make([]any, 0, len(linkFields)+1)
		args = append(args, row[field])
		for _, link := range linkFields {
			args = append(args, row[link])
		}
		if _, err := c.db.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrapf(err, "backfilling column %s", field)
		}
	}
	return nil
}

// batchColumns returns the union of columns present across rows, sorted
// for deterministic statement generation.
func batchColumns(rows []record.Record) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			seen[col] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for col := range seen {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// sqlArg converts a record.Value into a database/sql-compatible driver
// argument. Missing columns (zero Value) pass through as a SQL NULL.
func sqlArg(v record.Value) any {
	switch v.Kind {
	case record.KindNull:
		return nil
	case record.KindInt:
		return v.Int
	case record.KindFloat:
		return v.Float
	case record.KindBool:
		return v.Bool
	case record.KindStr, record.KindIP, record.KindUUID:
		return v.Str
	case record.KindDateTime:
		return v.Time
	default:
		return v.String()
	}
}
