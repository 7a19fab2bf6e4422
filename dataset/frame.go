// Package dataset provides the columnar Frame the pipeline stages pass
// around, with CSV I/O, missing-value handling, outlier filtering and
// seeded splits.
//
// Frames are values: every operation that changes rows or columns returns a
// new Frame and leaves the receiver untouched.
package dataset

import (
	"math"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// Kind is the storage kind of a column.
type Kind int

const (
	// Numeric columns hold float64 values with NaN marking a missing value.
	Numeric Kind = iota
	// Categorical columns hold strings with a parallel null mask.
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Column is a single named column. Exactly one of Nums or Strs is set,
// according to Kind.
type Column struct {
	Name string
	Kind Kind
	Nums []float64
	Strs []string
	Null []bool
}

// NumericColumn builds a numeric column. NaN marks missing values.
func NumericColumn(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Nums: values}
}

// CategoricalColumn builds a categorical column. A nil null mask means no
// value is missing.
func CategoricalColumn(name string, values []string, null []bool) *Column {
	if null == nil {
		null = make([]bool, len(values))
	}
	return &Column{Name: name, Kind: Categorical, Strs: values, Null: null}
}

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Nums)
	}
	return len(c.Strs)
}

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Nums[i])
	}
	return c.Null[i]
}

// MissingCount returns the number of missing values.
func (c *Column) MissingCount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			n++
		}
	}
	return n
}

// String renders row i the way it is written to CSV. Missing values render
// as the empty string.
func (c *Column) String(i int) string {
	if c.IsMissing(i) {
		return ""
	}
	if c.Kind == Numeric {
		return strconv.FormatFloat(c.Nums[i], 'f', -1, 64)
	}
	return c.Strs[i]
}

// Categories returns the distinct non-missing values, sorted. Numeric
// columns render their values with String.
func (c *Column) Categories() []string {
	seen := make(map[string]struct{})
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			seen[c.String(i)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (c *Column) take(idx []int) *Column {
	if c.Kind == Numeric {
		nums := make([]float64, len(idx))
		for j, i := range idx {
			nums[j] = c.Nums[i]
		}
		return NumericColumn(c.Name, nums)
	}
	strs := make([]string, len(idx))
	null := make([]bool, len(idx))
	for j, i := range idx {
		strs[j] = c.Strs[i]
		null[j] = c.Null[i]
	}
	return CategoricalColumn(c.Name, strs, null)
}

func (c *Column) clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		out.Nums = append([]float64(nil), c.Nums...)
		return out
	}
	out.Strs = append([]string(nil), c.Strs...)
	out.Null = append([]bool(nil), c.Null...)
	return out
}

// Frame is an ordered set of equally long named columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// NewFrame builds a frame from columns, which must have distinct names and
// equal lengths.
func NewFrame(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewValueError("NewFrame", "duplicate column "+strconv.Quote(c.Name))
		}
		if c.Kind == Categorical && len(c.Null) != len(c.Strs) {
			return nil, errors.NewValueError("NewFrame", "null mask length differs for column "+strconv.Quote(c.Name))
		}
		if i == 0 {
			f.nrows = c.Len()
		} else if c.Len() != f.nrows {
			return nil, errors.NewDimensionError("NewFrame", f.nrows, c.Len(), 0)
		}
		f.index[c.Name] = i
		f.cols = append(f.cols, c)
	}
	return f, nil
}

func (f *Frame) derive(cols []*Column, nrows int) *Frame {
	out := &Frame{cols: cols, index: make(map[string]int, len(cols)), nrows: nrows}
	for i, c := range cols {
		out.index[c.Name] = i
	}
	return out
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return f.nrows }

// NumCols returns the number of columns.
func (f *Frame) NumCols() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column. Callers must not modify it.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, errors.NewValueError("Column", "no column "+strconv.Quote(name))
	}
	return f.cols[i], nil
}

// Columns returns the columns in order. Callers must not modify them.
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.cols...)
}

// Numeric returns the values of a numeric column. A categorical column is a
// type mismatch.
func (f *Frame) Numeric(name string) ([]float64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Numeric {
		return nil, errors.NewValueError("Numeric", "column "+strconv.Quote(name)+" holds non-numeric values")
	}
	return c.Nums, nil
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return f.derive(cols, f.nrows), nil
}

// Drop returns a frame without the named columns. Absent names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	cols := make([]*Column, 0, len(f.cols))
	for _, c := range f.cols {
		if !drop[c.Name] {
			cols = append(cols, c)
		}
	}
	return f.derive(cols, f.nrows)
}

// WithColumn returns a frame with c replacing the column of the same name,
// or appended when there is none.
func (f *Frame) WithColumn(c *Column) (*Frame, error) {
	if c.Len() != f.nrows && len(f.cols) > 0 {
		return nil, errors.NewDimensionError("WithColumn", f.nrows, c.Len(), 0)
	}
	cols := append([]*Column(nil), f.cols...)
	if i, ok := f.index[c.Name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return f.derive(cols, c.Len()), nil
}

// Take returns the rows at idx, in that order.
func (f *Frame) Take(idx []int) *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(idx)
	}
	return f.derive(cols, len(idx))
}

// Filter returns the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	idx := make([]int, 0, f.nrows)
	for i := 0; i < f.nrows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return f.Take(idx)
}

// DropMissing returns the rows where the named column has a value.
func (f *Frame) DropMissing(name string) (*Frame, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	return f.Filter(func(i int) bool { return !c.IsMissing(i) }), nil
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	cols := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.clone()
	}
	return f.derive(cols, f.nrows)
}
