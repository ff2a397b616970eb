// Package frame provides the in-memory tabular structure shared by every
// pipeline stage. A Frame is column-ordered, cells are tagged values, and
// transforms follow a copy-on-write discipline: stages clone the input and
// return a new Frame instead of mutating what the caller handed in.
package frame

import (
	"fmt"
	"time"
)

// Kind identifies the runtime type stored in a Value.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindInt
	KindFloat
	KindTime
	KindBool
)

// ColumnType is the declared (resolved) type of a column after dtype
// standardization. Names follow the contract dtype vocabulary so contract
// validation can compare them directly. The zero value means "raw": the
// column has not been standardized yet.
type ColumnType string

const (
	TypeRaw   ColumnType = ""
	TypeText  ColumnType = "string"
	TypeInt   ColumnType = "Int64"
	TypeFloat ColumnType = "Float64"
	TypeTime  ColumnType = "datetime64[ns]"
)

// Value is a single cell. Missing is an explicit state, not a nil pointer,
// so coercion stages can count transitions into it.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	t    time.Time
	b    bool
}

// NA returns the explicit missing marker.
func NA() Value { return Value{kind: KindMissing} }

// String wraps a text cell.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int wraps an integer cell.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point cell.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Time wraps a date/datetime cell.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Bool wraps a boolean cell.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the runtime type tag of the cell.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the cell is the explicit missing marker.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// AsString returns the text content when the cell is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsInt returns the integer content when the cell is an integer.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the numeric content for integer or float cells.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsTime returns the time content when the cell is a date/datetime.
func (v Value) AsTime() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// AsBool returns the boolean content when the cell is a bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Render formats the cell for aggregate report labels. Missing renders as
// "<NA>" to match the report vocabulary.
func (v Value) Render() string {
	switch v.kind {
	case KindMissing:
		return "<NA>"
	case KindString:
		return v.str
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindTime:
		return v.t.Format("2006-01-02")
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return ""
	}
}

// Equal compares two cells by kind and content. Two missing cells compare
// equal; this matches how changed-value counts treat NA.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindMissing:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindTime:
		return v.t.Equal(other.t)
	case KindBool:
		return v.b == other.b
	default:
		return false
	}
}

// Frame is a column-ordered table with named, tagged-value columns.
type Frame struct {
	cols  []string
	data  map[string][]Value
	types map[string]ColumnType
	rows  int
}

// New creates an empty frame with the given row count and no columns.
func New(rows int) *Frame {
	return &Frame{
		data:  make(map[string][]Value),
		types: make(map[string]ColumnType),
		rows:  rows,
	}
}

// NAColumn returns a column of n explicit missing markers.
func NAColumn(n int) []Value {
	col := make([]Value, n)
	for i := range col {
		col[i] = NA()
	}
	return col
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return f.rows }

// NumColumns returns the number of columns.
func (f *Frame) NumColumns() int { return len(f.cols) }

// Columns returns the ordered column names as a fresh slice.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.cols))
	copy(out, f.cols)
	return out
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Column returns the backing slice for a column. Callers that mutate it must
// own the frame (clone first); pipeline stages rely on this for in-place
// column rewrites after Clone.
func (f *Frame) Column(name string) ([]Value, bool) {
	col, ok := f.data[name]
	return col, ok
}

// Value returns a single cell.
func (f *Frame) Value(name string, row int) (Value, error) {
	col, ok := f.data[name]
	if !ok {
		return Value{}, fmt.Errorf("column %q does not exist", name)
	}
	if row < 0 || row >= len(col) {
		return Value{}, fmt.Errorf("row %d out of range for column %q (%d rows)", row, name, len(col))
	}
	return col[row], nil
}

// AddColumn appends a new column. It fails when the name is taken or the
// length disagrees with the frame's row count.
func (f *Frame) AddColumn(name string, values []Value) error {
	if _, exists := f.data[name]; exists {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != f.rows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	f.cols = append(f.cols, name)
	f.data[name] = values
	return nil
}

// SetColumn replaces the values of an existing column or appends a new one.
func (f *Frame) SetColumn(name string, values []Value) error {
	if len(values) != f.rows {
		return fmt.Errorf("column %q has %d values, frame has %d rows", name, len(values), f.rows)
	}
	if _, exists := f.data[name]; !exists {
		f.cols = append(f.cols, name)
	}
	f.data[name] = values
	return nil
}

// Rename changes a column name in place, keeping its position and type.
func (f *Frame) Rename(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	col, ok := f.data[oldName]
	if !ok {
		return fmt.Errorf("column %q does not exist", oldName)
	}
	if _, exists := f.data[newName]; exists {
		return fmt.Errorf("column %q already exists", newName)
	}
	for i, c := range f.cols {
		if c == oldName {
			f.cols[i] = newName
			break
		}
	}
	f.data[newName] = col
	delete(f.data, oldName)
	if t, ok := f.types[oldName]; ok {
		f.types[newName] = t
		delete(f.types, oldName)
	}
	return nil
}

// Drop removes the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) {
	doomed := make(map[string]bool, len(names))
	for _, n := range names {
		doomed[n] = true
	}
	kept := f.cols[:0]
	for _, c := range f.cols {
		if doomed[c] {
			delete(f.data, c)
			delete(f.types, c)
			continue
		}
		kept = append(kept, c)
	}
	f.cols = kept
}

// Reorder arranges columns into the given order. The order must name every
// column exactly once.
func (f *Frame) Reorder(order []string) error {
	if len(order) != len(f.cols) {
		return fmt.Errorf("reorder lists %d columns, frame has %d", len(order), len(f.cols))
	}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if _, ok := f.data[name]; !ok {
			return fmt.Errorf("reorder names unknown column %q", name)
		}
		if seen[name] {
			return fmt.Errorf("reorder names column %q twice", name)
		}
		seen[name] = true
	}
	f.cols = append([]string(nil), order...)
	return nil
}

// ColumnType returns the declared type of a column (TypeRaw when unset).
func (f *Frame) ColumnType(name string) ColumnType {
	return f.types[name]
}

// SetColumnType declares the resolved type of a column.
func (f *Frame) SetColumnType(name string, t ColumnType) {
	if _, ok := f.data[name]; ok {
		f.types[name] = t
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		cols:  append([]string(nil), f.cols...),
		data:  make(map[string][]Value, len(f.data)),
		types: make(map[string]ColumnType, len(f.types)),
		rows:  f.rows,
	}
	for name, col := range f.data {
		out.data[name] = append([]Value(nil), col...)
	}
	for name, t := range f.types {
		out.types[name] = t
	}
	return out
}

// SelectRows builds a new frame keeping only the given row indexes, in order.
func (f *Frame) SelectRows(keep []int) (*Frame, error) {
	out := &Frame{
		cols:  append([]string(nil), f.cols...),
		data:  make(map[string][]Value, len(f.data)),
		types: make(map[string]ColumnType, len(f.types)),
		rows:  len(keep),
	}
	for _, row := range keep {
		if row < 0 || row >= f.rows {
			return nil, fmt.Errorf("row index %d out of range [0,%d)", row, f.rows)
		}
	}
	for name, col := range f.data {
		selected := make([]Value, 0, len(keep))
		for _, row := range keep {
			selected = append(selected, col[row])
		}
		out.data[name] = selected
	}
	for name, t := range f.types {
		out.types[name] = t
	}
	return out, nil
}

// AllMissing reports whether every cell of the column is missing. Unknown
// columns report false.
func (f *Frame) AllMissing(name string) bool {
	col, ok := f.data[name]
	if !ok {
		return false
	}
	for _, v := range col {
		if !v.IsMissing() {
			return false
		}
	}
	return true
}

// NonMissingCount counts cells that are not the missing marker.
func (f *Frame) NonMissingCount(name string) int {
	col, ok := f.data[name]
	if !ok {
		return 0
	}
	n := 0
	for _, v := range col {
		if !v.IsMissing() {
			n++
		}
	}
	return n
}
