package preprocessing

import (
	"encoding/json"
	"sort"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// FrequencySuffix is appended to the source column name to form the
// encoded column, e.g. "Area" becomes "Area_freq".
const FrequencySuffix = "_freq"

// FrequencyEncoder replaces a categorical column by the number of times
// each category occurred in the training partition. Categories not seen
// during Fit, and missing values, map to Fallback, the mean of the counts.
type FrequencyEncoder struct {
	Column   string
	Counts   map[string]float64
	Fallback float64

	fitted bool
}

// NewFrequencyEncoder returns an unfitted encoder for column.
func NewFrequencyEncoder(column string) *FrequencyEncoder {
	return &FrequencyEncoder{Column: column}
}

// OutputColumn is the name of the encoded column.
func (e *FrequencyEncoder) OutputColumn() string {
	return e.Column + FrequencySuffix
}

// Fit counts the categories of the encoder's column in f.
func (e *FrequencyEncoder) Fit(f *dataset.Frame) error {
	c, err := f.Column(e.Column)
	if err != nil {
		return err
	}
	counts := make(map[string]float64)
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			counts[c.String(i)]++
		}
	}
	if len(counts) == 0 {
		return errors.NewModelError("FrequencyEncoder.Fit", "no values in "+e.Column, errors.ErrEmptyData)
	}

	total := 0.0
	for _, n := range counts {
		total += n
	}
	e.Counts = counts
	e.Fallback = total / float64(len(counts))
	e.fitted = true
	return nil
}

// Lookup returns the encoded value of category.
func (e *FrequencyEncoder) Lookup(category string) float64 {
	if n, ok := e.Counts[category]; ok {
		return n
	}
	return e.Fallback
}

// Transform returns f with the source column replaced by OutputColumn.
func (e *FrequencyEncoder) Transform(f *dataset.Frame) (*dataset.Frame, error) {
	if !e.fitted {
		return nil, errors.NewNotFittedError("FrequencyEncoder", "Transform")
	}
	c, err := f.Column(e.Column)
	if err != nil {
		return nil, err
	}
	vals := make([]float64, c.Len())
	for i := range vals {
		if c.IsMissing(i) {
			vals[i] = e.Fallback
			continue
		}
		vals[i] = e.Lookup(c.String(i))
	}
	return f.Drop(e.Column).WithColumn(dataset.NumericColumn(e.OutputColumn(), vals))
}

// Categories returns the known categories, sorted.
func (e *FrequencyEncoder) Categories() []string {
	out := make([]string, 0, len(e.Counts))
	for c := range e.Counts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type frequencyJSON struct {
	Column   string             `json:"column"`
	Counts   map[string]float64 `json:"counts"`
	Fallback float64            `json:"fallback"`
}

// MarshalJSON implements json.Marshaler.
func (e *FrequencyEncoder) MarshalJSON() ([]byte, error) {
	if !e.fitted {
		return nil, errors.NewNotFittedError("FrequencyEncoder", "MarshalJSON")
	}
	return json.Marshal(frequencyJSON{Column: e.Column, Counts: e.Counts, Fallback: e.Fallback})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *FrequencyEncoder) UnmarshalJSON(data []byte) error {
	var v frequencyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Column == "" || len(v.Counts) == 0 {
		return errors.NewValueError("FrequencyEncoder.UnmarshalJSON", "column and counts are required")
	}
	e.Column, e.Counts, e.Fallback = v.Column, v.Counts, v.Fallback
	e.fitted = true
	return nil
}

// Save writes the encoder as a versioned envelope.
func (e *FrequencyEncoder) Save(path string) error {
	return model.SaveEnvelope(path, model.KindFrequencyMap, e)
}

// LoadFrequencyEncoder reads an encoder written by Save.
func LoadFrequencyEncoder(path string) (*FrequencyEncoder, error) {
	e := &FrequencyEncoder{}
	if err := model.LoadEnvelope(path, model.KindFrequencyMap, e); err != nil {
		return nil, err
	}
	return e, nil
}
