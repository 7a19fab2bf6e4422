package preprocessing

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/schema"
	"gonum.org/v1/gonum/mat"
)

// ColumnEncoder maps a frame to the model's design matrix. Numeric columns
// and the frequency-encoded column are standardized; the remaining
// categorical columns are one-hot encoded. Output columns are laid out as
//
//	[numeric..., <frequency column>_freq, onehot(col1)..., onehot(colN)...]
//
// The encoder is fitted once on the training partition and only applied
// afterwards. Transform expects the frequency column to have been encoded
// already (see FrequencyEncoder.Transform).
type ColumnEncoder struct {
	NumericColumns  []string
	FrequencyColumn string
	OneHotColumns   []string

	Scaler *StandardScaler
	OneHot *OneHotEncoder
}

// NewColumnEncoder returns an unfitted encoder. frequencyColumn is the
// source categorical column; the encoder reads its "_freq" counterpart.
func NewColumnEncoder(numeric []string, frequencyColumn string, oneHot []string) *ColumnEncoder {
	return &ColumnEncoder{
		NumericColumns:  append([]string(nil), numeric...),
		FrequencyColumn: frequencyColumn,
		OneHotColumns:   append([]string(nil), oneHot...),
		Scaler:          NewStandardScalerDefault(),
		OneHot:          NewOneHotEncoder(),
	}
}

// NewColumnEncoderForSchema selects the columns named by s.
func NewColumnEncoderForSchema(s *schema.Schema) *ColumnEncoder {
	return NewColumnEncoder(s.NumericalColumns, s.FrequencyEncodedColumn, s.OneHotColumns())
}

func (e *ColumnEncoder) scaledColumns() []string {
	return append(append([]string(nil), e.NumericColumns...), e.FrequencyColumn+FrequencySuffix)
}

// Width is the number of output columns. It is only meaningful after Fit.
func (e *ColumnEncoder) Width() int {
	return len(e.NumericColumns) + 1 + e.OneHot.Width()
}

// FeatureNames names every output column in layout order.
func (e *ColumnEncoder) FeatureNames() []string {
	return append(e.scaledColumns(), e.OneHot.FeatureNames()...)
}

// IsFitted reports whether Fit has completed.
func (e *ColumnEncoder) IsFitted() bool {
	return e.Scaler.IsFitted() && e.OneHot.state.IsFitted()
}

// Fit learns scaling statistics and category sets from f.
func (e *ColumnEncoder) Fit(f *dataset.Frame) error {
	numeric, err := e.numericMatrix(f)
	if err != nil {
		return err
	}
	if err := e.Scaler.Fit(numeric); err != nil {
		return err
	}
	return e.OneHot.Fit(f, e.OneHotColumns...)
}

// Transform encodes f. It never refits.
func (e *ColumnEncoder) Transform(f *dataset.Frame) (*mat.Dense, error) {
	if !e.IsFitted() {
		return nil, errors.NewNotFittedError("ColumnEncoder", "Transform")
	}
	numeric, err := e.numericMatrix(f)
	if err != nil {
		return nil, err
	}
	cats, err := e.OneHot.columns(f)
	if err != nil {
		return nil, err
	}

	n, nScaled := numeric.Dims()
	out := mat.NewDense(n, e.Width(), nil)
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		e.Scaler.transformRow(row[:nScaled], numeric.RawRowView(i))
		e.OneHot.encodeRow(row[nScaled:], cats, i)
	}
	return out, nil
}

// FitTransform fits on f and encodes it.
func (e *ColumnEncoder) FitTransform(f *dataset.Frame) (*mat.Dense, error) {
	if err := e.Fit(f); err != nil {
		return nil, err
	}
	return e.Transform(f)
}

// numericMatrix gathers the scaled columns. A column stored as categorical
// means the data held non-numeric values and is a type mismatch.
func (e *ColumnEncoder) numericMatrix(f *dataset.Frame) (*mat.Dense, error) {
	n := f.NumRows()
	if n == 0 {
		return nil, errors.NewModelError("ColumnEncoder", "empty data", errors.ErrEmptyData)
	}
	names := e.scaledColumns()
	m := mat.NewDense(n, len(names), nil)
	for j, name := range names {
		vals, err := f.Numeric(name)
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if math.IsNaN(v) {
				return nil, errors.NewValueError("ColumnEncoder", "missing value in column "+strconv.Quote(name)+" at row "+strconv.Itoa(i))
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

type columnEncoderJSON struct {
	NumericColumns  []string        `json:"numeric_columns"`
	FrequencyColumn string          `json:"frequency_column"`
	OneHotColumns   []string        `json:"onehot_columns"`
	Scaler          *StandardScaler `json:"scaler"`
	OneHot          *OneHotEncoder  `json:"onehot"`
}

// MarshalJSON implements json.Marshaler.
func (e *ColumnEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(columnEncoderJSON{
		NumericColumns:  e.NumericColumns,
		FrequencyColumn: e.FrequencyColumn,
		OneHotColumns:   e.OneHotColumns,
		Scaler:          e.Scaler,
		OneHot:          e.OneHot,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ColumnEncoder) UnmarshalJSON(data []byte) error {
	v := columnEncoderJSON{Scaler: NewStandardScalerDefault(), OneHot: NewOneHotEncoder()}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	nFeatures, _ := v.Scaler.state.GetDimensions()
	if nFeatures != len(v.NumericColumns)+1 {
		return errors.NewDimensionError("ColumnEncoder.UnmarshalJSON", len(v.NumericColumns)+1, nFeatures, 1)
	}
	e.NumericColumns = v.NumericColumns
	e.FrequencyColumn = v.FrequencyColumn
	e.OneHotColumns = v.OneHotColumns
	e.Scaler = v.Scaler
	e.OneHot = v.OneHot
	return nil
}

// Save writes the fitted encoder as a versioned envelope.
func (e *ColumnEncoder) Save(path string) error {
	return model.SaveEnvelope(path, model.KindEncoder, e)
}

// LoadColumnEncoder reads an encoder written by Save.
func LoadColumnEncoder(path string) (*ColumnEncoder, error) {
	e := &ColumnEncoder{}
	if err := model.LoadEnvelope(path, model.KindEncoder, e); err != nil {
		return nil, err
	}
	return e, nil
}
