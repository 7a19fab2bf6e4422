package preprocessing

import (
	"encoding/json"
	"sort"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// OneHotEncoder expands categorical columns into indicator blocks, one
// block per column with one position per category seen during Fit.
// Categories are ordered lexically. A value that was not seen during Fit,
// or a missing value, encodes as an all-zero block.
type OneHotEncoder struct {
	state *model.StateManager

	Columns    []string
	Categories [][]string

	index   []map[string]int
	offsets []int
	width   int
}

// NewOneHotEncoder returns an unfitted encoder.
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{state: model.NewStateManager()}
}

// Fit learns the categories of the named columns of f.
func (e *OneHotEncoder) Fit(f *dataset.Frame, columns ...string) error {
	if f.NumRows() == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "empty data", errors.ErrEmptyData)
	}
	cats := make([][]string, len(columns))
	for k, name := range columns {
		c, err := f.Column(name)
		if err != nil {
			return err
		}
		cats[k] = c.Categories()
	}
	e.Columns = append([]string(nil), columns...)
	e.Categories = cats
	e.build()
	e.state.SetDimensions(len(columns), f.NumRows())
	e.state.SetFitted()
	return nil
}

func (e *OneHotEncoder) build() {
	e.index = make([]map[string]int, len(e.Categories))
	e.offsets = make([]int, len(e.Categories))
	e.width = 0
	for k, cats := range e.Categories {
		e.offsets[k] = e.width
		e.index[k] = make(map[string]int, len(cats))
		for i, c := range cats {
			e.index[k][c] = i
		}
		e.width += len(cats)
	}
}

// Width is the number of output columns.
func (e *OneHotEncoder) Width() int {
	return e.width
}

// FeatureNames returns "<column>_<category>" for every output column.
func (e *OneHotEncoder) FeatureNames() []string {
	names := make([]string, 0, e.width)
	for k, cats := range e.Categories {
		for _, c := range cats {
			names = append(names, e.Columns[k]+"_"+c)
		}
	}
	return names
}

// Transform encodes f into an n×Width matrix.
func (e *OneHotEncoder) Transform(f *dataset.Frame) (*mat.Dense, error) {
	if err := e.state.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	cols, err := e.columns(f)
	if err != nil {
		return nil, err
	}
	n := f.NumRows()
	if n == 0 || e.width == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(n, e.width, nil)
	for i := 0; i < n; i++ {
		e.encodeRow(out.RawRowView(i), cols, i)
	}
	return out, nil
}

func (e *OneHotEncoder) columns(f *dataset.Frame) ([]*dataset.Column, error) {
	cols := make([]*dataset.Column, len(e.Columns))
	for k, name := range e.Columns {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		cols[k] = c
	}
	return cols, nil
}

// encodeRow writes row i of cols into dst, which must be zeroed and
// Width long.
func (e *OneHotEncoder) encodeRow(dst []float64, cols []*dataset.Column, i int) {
	for k, c := range cols {
		if c.IsMissing(i) {
			continue
		}
		if pos, ok := e.index[k][c.String(i)]; ok {
			dst[e.offsets[k]+pos] = 1
		}
	}
}

type oneHotJSON struct {
	State      model.ModelState `json:"state"`
	Columns    []string         `json:"columns"`
	Categories [][]string       `json:"categories"`
}

// MarshalJSON implements json.Marshaler.
func (e *OneHotEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(oneHotJSON{
		State:      e.state.GetState(),
		Columns:    e.Columns,
		Categories: e.Categories,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *OneHotEncoder) UnmarshalJSON(data []byte) error {
	var v oneHotJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v.Columns) != len(v.Categories) {
		return errors.NewValueError("OneHotEncoder.UnmarshalJSON", "columns and categories lengths differ")
	}
	for _, cats := range v.Categories {
		if !sort.StringsAreSorted(cats) {
			return errors.NewValueError("OneHotEncoder.UnmarshalJSON", "categories must be sorted")
		}
	}
	if e.state == nil {
		e.state = model.NewStateManager()
	}
	e.state.SetState(v.State)
	e.Columns = v.Columns
	e.Categories = v.Categories
	e.build()
	return nil
}
