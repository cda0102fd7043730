// Package ident provides canonical identifiers for fields, tables, and
// collections. The relational client uses them to quote table and column
// names in DDL/DML; elsewhere in the pipeline (decisions, stats, metadata
// map keys, collection names) field and collection names are plain
// strings.
package ident

import "strings"

// Ident is a canonical, dot-free name: a field name, a table name, or a
// collection name. The zero value is the empty identifier.
type Ident struct {
	raw string
}

// New wraps a raw name as an Ident. The caller is responsible for having
// already flattened the name (see package record).
func New(raw string) Ident {
	return Ident{raw: raw}
}

// Raw returns the unquoted, underlying name.
func (i Ident) Raw() string {
	return i.raw
}

// Quoted returns the name wrapped in MySQL backtick-quoting, doubling any
// embedded backtick per the standard escaping rule.
func (i Ident) Quoted() string {
	return "`" + strings.ReplaceAll(i.raw, "`", "``") + "`"
}

// String implements fmt.Stringer.
func (i Ident) String() string {
	return i.raw
}

// IsEmpty reports whether the identifier carries no name.
func (i Ident) IsEmpty() bool {
	return i.raw == ""
}

// Table identifies a destination table or collection by schema-qualified
// name. Schema is optional; when empty only Name is used.
type Table struct {
	Schema Ident
	Name   Ident
}

// NewTable builds a Table with no schema qualifier.
func NewTable(name string) Table {
	return Table{Name: New(name)}
}

// Raw returns the schema-qualified raw name, dot-joined.
func (t Table) Raw() string {
	if t.Schema.IsEmpty() {
		return t.Name.Raw()
	}
	return t.Schema.Raw() + "." + t.Name.Raw()
}

// Quoted returns the schema-qualified, quoted name suitable for DDL/DML.
func (t Table) Quoted() string {
	if t.Schema.IsEmpty() {
		return t.Name.Quoted()
	}
	return t.Schema.Quoted() + "." + t.Name.Quoted()
}

// String implements fmt.Stringer.
func (t Table) String() string {
	return t.Raw()
}
