// Package dataset holds the in-memory table model the engine samples,
// profiles, and transforms. Values stay raw strings as read from the
// source; typing decisions belong to the profiling layer.
package dataset

import (
	"fmt"
	"strings"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
)

// Row is one record keyed by column name.
type Row map[string]string

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Table is a column-ordered dataset. Columns preserves source order;
// Rows preserves source row order.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given column order.
func NewTable(name string, columns []string) *Table {
	return &Table{
		Name:    name,
		Columns: columns,
		Rows:    make([]Row, 0),
	}
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// HasColumn returns true if the column exists.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns the column's values in row order.
func (t *Table) Column(name string) ([]string, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("column %q: %w", name, apperrors.ErrColumnNotFound)
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values, nil
}

// AppendRow adds a row to the table.
func (t *Table) AppendRow(r Row) {
	t.Rows = append(t.Rows, r)
}

// Clone returns a deep copy. Transformations never mutate their input.
func (t *Table) Clone() *Table {
	c := &Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		c.Rows[i] = row.Clone()
	}
	return c
}

// DropColumn removes the column from the order and from every row.
// No-op when the column does not exist.
func (t *Table) DropColumn(name string) {
	cols := t.Columns[:0]
	for _, c := range t.Columns {
		if c != name {
			cols = append(cols, c)
		}
	}
	t.Columns = cols
	for _, row := range t.Rows {
		delete(row, name)
	}
}

// RowKey joins a row's values in column order. Used for exact-duplicate
// detection; the separator is unlikely to occur in data.
func (t *Table) RowKey(r Row) string {
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = r[c]
	}
	return strings.Join(parts, "\x1f")
}

// missingTokens are the cell values treated as absent, compared
// case-insensitively after trimming.
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"null": {},
	"none": {},
	"nan":  {},
}

// IsMissing reports whether a cell value represents a missing entry.
func IsMissing(v string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(v))]
	return ok
}
