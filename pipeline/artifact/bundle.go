package artifact

import (
	"encoding/json"
	"time"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/preprocessing"

	// Register every regressor a bundle may carry.
	_ "github.com/YuminosukeSato/cropyield/linear"
	_ "github.com/YuminosukeSato/cropyield/sklearn/ensemble"
	_ "github.com/YuminosukeSato/cropyield/sklearn/tree"
)

// Metric partitions stored in a bundle.
const (
	PartitionTrain = "train"
	PartitionTest  = "test"
)

// Bundle is everything inference needs: the frequency map, the fitted
// column encoder and the selected model.
type Bundle struct {
	FrequencyMap *preprocessing.FrequencyEncoder
	Encoder      *preprocessing.ColumnEncoder
	Model        model.Regressor
	Metrics      map[string]metrics.RegressionReport
	CreatedAt    time.Time
}

type bundleJSON struct {
	FrequencyMap *preprocessing.FrequencyEncoder     `json:"frequency_map"`
	Encoder      *preprocessing.ColumnEncoder        `json:"encoder"`
	Model        model.ModelSpec                     `json:"model"`
	Metrics      map[string]metrics.RegressionReport `json:"metrics"`
	CreatedAt    time.Time                           `json:"created_at"`
}

// Validate checks that every component is present and fitted.
func (b *Bundle) Validate() error {
	switch {
	case b.FrequencyMap == nil:
		return errors.NewValueError("Bundle", "frequency map is missing")
	case b.Encoder == nil:
		return errors.NewValueError("Bundle", "encoder is missing")
	case !b.Encoder.IsFitted():
		return errors.NewNotFittedError("ColumnEncoder", "Bundle")
	case b.Model == nil:
		return errors.NewValueError("Bundle", "model is missing")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	spec, err := model.EncodeRegressor(b.Model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(bundleJSON{
		FrequencyMap: b.FrequencyMap,
		Encoder:      b.Encoder,
		Model:        spec,
		Metrics:      b.Metrics,
		CreatedAt:    b.CreatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var raw bundleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r, err := model.DecodeRegressor(raw.Model)
	if err != nil {
		return err
	}
	*b = Bundle{
		FrequencyMap: raw.FrequencyMap,
		Encoder:      raw.Encoder,
		Model:        r,
		Metrics:      raw.Metrics,
		CreatedAt:    raw.CreatedAt,
	}
	return b.Validate()
}

// Save writes the bundle envelope to path.
func (b *Bundle) Save(path string) error {
	return model.SaveEnvelope(path, model.KindBundle, b)
}

// LoadBundle reads a bundle envelope. Unknown format versions, kinds and
// model types yield errors.ErrUnsupportedFormat.
func LoadBundle(path string) (*Bundle, error) {
	var b Bundle
	if err := model.LoadEnvelope(path, model.KindBundle, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveModel writes only the regressor, as a model envelope.
func SaveModel(path string, r model.Regressor) error {
	spec, err := model.EncodeRegressor(r)
	if err != nil {
		return err
	}
	return model.SaveEnvelope(path, model.KindModel, spec)
}

// LoadModel reads a model envelope written by SaveModel.
func LoadModel(path string) (model.Regressor, error) {
	var spec model.ModelSpec
	if err := model.LoadEnvelope(path, model.KindModel, &spec); err != nil {
		return nil, err
	}
	return model.DecodeRegressor(spec)
}
