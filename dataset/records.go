package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Options control how raw values become column values.
type Options struct {
	// MissingTokens are compared case-insensitively after trimming. The
	// empty string and nil are always missing.
	MissingTokens []string

	// ColumnOrder lists preferred leading columns for record input, whose
	// maps carry no order. Remaining columns follow in sorted order.
	ColumnOrder []string
}

type cell struct {
	s       string
	num     float64
	isNum   bool
	missing bool
}

func (o Options) isMissingToken(s string) bool {
	if s == "" {
		return true
	}
	for _, tok := range o.MissingTokens {
		if strings.EqualFold(s, tok) {
			return true
		}
	}
	return false
}

func (o Options) normalize(v any) cell {
	switch x := v.(type) {
	case nil:
		return cell{missing: true}
	case string:
		return o.normalizeString(x)
	case float64:
		return numCell(x)
	case float32:
		return numCell(float64(x))
	case int:
		return numCell(float64(x))
	case int32:
		return numCell(float64(x))
	case int64:
		return numCell(float64(x))
	case uint32:
		return numCell(float64(x))
	case uint64:
		return numCell(float64(x))
	case bool:
		return cell{s: strconv.FormatBool(x)}
	default:
		return o.normalizeString(fmt.Sprint(x))
	}
}

func (o Options) normalizeString(raw string) cell {
	s := strings.TrimSpace(raw)
	if o.isMissingToken(s) {
		return cell{missing: true}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) {
			return cell{missing: true}
		}
		return cell{s: s, num: f, isNum: true}
	}
	return cell{s: s}
}

func numCell(f float64) cell {
	if math.IsNaN(f) {
		return cell{missing: true}
	}
	return cell{s: strconv.FormatFloat(f, 'f', -1, 64), num: f, isNum: true}
}

// buildColumn infers the column kind: numeric when every present value is
// a number or a numeric string, categorical otherwise.
func buildColumn(name string, cells []cell) *Column {
	numeric := true
	for _, c := range cells {
		if !c.missing && !c.isNum {
			numeric = false
			break
		}
	}
	if numeric {
		nums := make([]float64, len(cells))
		for i, c := range cells {
			if c.missing {
				nums[i] = math.NaN()
			} else {
				nums[i] = c.num
			}
		}
		return NumericColumn(name, nums)
	}
	strs := make([]string, len(cells))
	null := make([]bool, len(cells))
	for i, c := range cells {
		strs[i] = c.s
		null[i] = c.missing
	}
	return CategoricalColumn(name, strs, null)
}

// FromRecords builds a frame from document-style records. A key absent from
// a record is a missing value in that row.
func FromRecords(records []map[string]any, opts Options) (*Frame, error) {
	present := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			present[k] = true
		}
	}

	names := make([]string, 0, len(present))
	placed := make(map[string]bool, len(present))
	for _, name := range opts.ColumnOrder {
		if present[name] && !placed[name] {
			names = append(names, name)
			placed[name] = true
		}
	}
	var rest []string
	for name := range present {
		if !placed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	cols := make([]*Column, len(names))
	for j, name := range names {
		cells := make([]cell, len(records))
		for i, rec := range records {
			v, ok := rec[name]
			if !ok {
				cells[i] = cell{missing: true}
				continue
			}
			cells[i] = opts.normalize(v)
		}
		cols[j] = buildColumn(name, cells)
	}
	return NewFrame(cols...)
}

// Row returns row i as a map from column name to value: float64 for numeric
// columns, string for categorical ones and nil when missing.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.cols))
	for _, c := range f.cols {
		switch {
		case c.IsMissing(i):
			row[c.Name] = nil
		case c.Kind == Numeric:
			row[c.Name] = c.Nums[i]
		default:
			row[c.Name] = c.Strs[i]
		}
	}
	return row
}
