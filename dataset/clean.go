package dataset

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// ImputeMedian replaces missing values in each named numeric column with
// that column's median. It returns the new frame and the medians used.
func ImputeMedian(f *Frame, names ...string) (*Frame, map[string]float64, error) {
	medians := make(map[string]float64, len(names))
	out := f
	for _, name := range names {
		values, err := f.Numeric(name)
		if err != nil {
			return nil, nil, err
		}
		med := Median(values)
		if math.IsNaN(med) {
			return nil, nil, errors.NewValueError("ImputeMedian", "column "+strconv.Quote(name)+" has no values to take a median from")
		}
		filled := make([]float64, len(values))
		for i, v := range values {
			if math.IsNaN(v) {
				v = med
			}
			filled[i] = v
		}
		out, err = out.WithColumn(NumericColumn(name, filled))
		if err != nil {
			return nil, nil, err
		}
		medians[name] = med
	}
	return out, medians, nil
}

// Bounds is an inclusive value range.
type Bounds struct {
	Lower float64
	Upper float64
}

// Contains reports whether v lies inside the bounds. NaN never does.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// IQRBounds returns [Q1 - k*IQR, Q3 + k*IQR] for values.
func IQRBounds(values []float64, k float64) Bounds {
	q1 := Quantile(values, 0.25)
	q3 := Quantile(values, 0.75)
	iqr := q3 - q1
	return Bounds{Lower: q1 - k*iqr, Upper: q3 + k*iqr}
}

// FilterIQR keeps the rows whose value in the named numeric column lies
// within its IQR bounds. Rows with a missing value are dropped.
func FilterIQR(f *Frame, name string, k float64) (*Frame, Bounds, error) {
	values, err := f.Numeric(name)
	if err != nil {
		return nil, Bounds{}, err
	}
	b := IQRBounds(values, k)
	return f.Filter(func(i int) bool { return b.Contains(values[i]) }), b, nil
}

// FilterIQRSequential applies FilterIQR to each column in turn. Bounds for
// a column are computed on the rows that survived the previous columns.
func FilterIQRSequential(f *Frame, names []string, k float64) (*Frame, map[string]Bounds, error) {
	bounds := make(map[string]Bounds, len(names))
	out := f
	for _, name := range names {
		var (
			b   Bounds
			err error
		)
		out, b, err = FilterIQR(out, name, k)
		if err != nil {
			return nil, nil, err
		}
		bounds[name] = b
	}
	return out, bounds, nil
}
