// Package frame provides the typed, schema-checked tabular container that
// flow features travel in between preprocessing, training and inference.
//
// A Frame is an ordered set of named columns of equal length. Columns are
// either numeric ([]float64) or categorical ([]string). Operations return new
// frames and never modify column data in place, so unchanged columns may be
// shared between frames.
package frame

import (
	"fmt"
	"math"
	"sort"

	"github.com/argus-v/argus-ml/internal/errs"
)

// Kind is the storage type of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// Column is a single named column.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// NumericColumn builds a numeric column.
func NumericColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: Numeric, Floats: values}
}

// CategoricalColumn builds a categorical column.
func CategoricalColumn(name string, values []string) Column {
	return Column{Name: name, Kind: Categorical, Strings: values}
}

// Len returns the number of cells in the column.
func (c Column) Len() int {
	if c.Kind == Categorical {
		return len(c.Strings)
	}
	return len(c.Floats)
}

// take returns a copy of the column restricted to the given row indexes.
func (c Column) take(idx []int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Categorical {
		out.Strings = make([]string, len(idx))
		for i, j := range idx {
			out.Strings[i] = c.Strings[j]
		}
		return out
	}
	out.Floats = make([]float64, len(idx))
	for i, j := range idx {
		out.Floats[i] = c.Floats[j]
	}
	return out
}

// Frame is an immutable table of flow records.
type Frame struct {
	cols  []Column
	index map[string]int
	rows  int
}

// New validates and assembles columns into a frame. Column names must be
// unique and non-empty and every column must have the same length.
func New(cols ...Column) (*Frame, error) {
	f := &Frame{
		cols:  make([]Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			f.rows = c.Len()
		} else if c.Len() != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), f.rows)
		}
		f.index[c.Name] = len(f.cols)
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// MustNew is New that panics on error. Intended for fixtures.
func MustNew(cols ...Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// FromMatrix builds a numeric frame from row-major data.
func FromMatrix(names []string, rows [][]float64) (*Frame, error) {
	cols := make([]Column, len(names))
	for j, name := range names {
		values := make([]float64, len(rows))
		for i, row := range rows {
			if len(row) != len(names) {
				return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(names))
			}
			values[i] = row[j]
		}
		cols[j] = NumericColumn(name, values)
	}
	return New(cols...)
}

// Rows returns the number of records.
func (f *Frame) Rows() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// NumericNames returns the names of numeric columns in order.
func (f *Frame) NumericNames() []string {
	var names []string
	for _, c := range f.cols {
		if c.Kind == Numeric {
			names = append(names, c.Name)
		}
	}
	return names
}

// Has reports whether the frame contains a column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns a column by name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return Column{}, false
	}
	return f.cols[i], true
}

// Floats returns the values of a numeric column.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, ok := f.Column(name)
	if !ok {
		return nil, &errs.SchemaError{Missing: []string{name}}
	}
	if c.Kind != Numeric {
		return nil, fmt.Errorf("column %q is %s, not numeric", name, c.Kind)
	}
	return c.Floats, nil
}

// Require returns a *errs.SchemaError naming every absent column.
func (f *Frame) Require(names ...string) error {
	var missing []string
	for _, n := range names {
		if !f.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &errs.SchemaError{Missing: missing}
	}
	return nil
}

// Select returns a frame with exactly the named columns in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	if err := f.Require(names...); err != nil {
		return nil, err
	}
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = f.cols[f.index[n]]
	}
	return New(cols...)
}

// With returns a frame where col replaces the same-named column, or is
// appended when no such column exists.
func (f *Frame) With(col Column) (*Frame, error) {
	cols := make([]Column, len(f.cols), len(f.cols)+1)
	copy(cols, f.cols)
	if i, ok := f.index[col.Name]; ok {
		cols[i] = col
	} else {
		cols = append(cols, col)
	}
	return New(cols...)
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	cols := make([]Column, 0, len(f.cols))
	for _, c := range f.cols {
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	out, _ := New(cols...)
	return out
}

// Take returns the rows at the given indexes, in that order.
func (f *Frame) Take(idx []int) *Frame {
	cols := make([]Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(idx)
	}
	out, _ := New(cols...)
	return out
}

// Filter keeps the rows whose mask entry is true.
func (f *Frame) Filter(keep []bool) *Frame {
	idx := make([]int, 0, f.rows)
	for i := 0; i < f.rows && i < len(keep); i++ {
		if keep[i] {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// Head returns at most n leading rows.
func (f *Frame) Head(n int) *Frame {
	if n > f.rows {
		n = f.rows
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return f.Take(idx)
}

// Matrix returns the named numeric columns as row-major data.
func (f *Frame) Matrix(names ...string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, n := range names {
		values, err := f.Floats(n)
		if err != nil {
			return nil, err
		}
		cols[j] = values
	}
	rows := make([][]float64, f.rows)
	for i := range rows {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

// Cell returns cell (i, name) formatted as text.
func (f *Frame) Cell(i int, name string) (string, bool) {
	c, ok := f.Column(name)
	if !ok || i < 0 || i >= f.rows {
		return "", false
	}
	if c.Kind == Categorical {
		return c.Strings[i], true
	}
	return fmt.Sprint(c.Floats[i]), true
}

// Labels returns a 0/1 label column. Any non-zero value counts as 1.
func (f *Frame) Labels(name string) ([]int, error) {
	values, err := f.Floats(name)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(values))
	for i, v := range values {
		if v != 0 && !math.IsNaN(v) {
			labels[i] = 1
		}
	}
	return labels, nil
}

// FromRecords builds a frame from decoded JSON objects. A column is numeric
// when every value is a number and categorical otherwise. Every record must
// carry the same keys. Columns are ordered by name.
func FromRecords(records []map[string]any) (*Frame, error) {
	if len(records) == 0 {
		return New()
	}
	names := make([]string, 0, len(records[0]))
	for k := range records[0] {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for j, name := range names {
		numeric := true
		for i, rec := range records {
			v, ok := rec[name]
			if !ok {
				return nil, fmt.Errorf("record %d is missing %q", i, name)
			}
			if _, isNum := toFloat(v); !isNum {
				numeric = false
			}
		}
		if numeric {
			values := make([]float64, len(records))
			for i, rec := range records {
				values[i], _ = toFloat(rec[name])
			}
			cols[j] = NumericColumn(name, values)
			continue
		}
		values := make([]string, len(records))
		for i, rec := range records {
			values[i] = fmt.Sprint(rec[name])
		}
		cols[j] = CategoricalColumn(name, values)
	}
	for i, rec := range records {
		if len(rec) != len(names) {
			return nil, fmt.Errorf("record %d has %d fields, expected %d", i, len(rec), len(names))
		}
	}
	return New(cols...)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
