// Package inference serves predictions from a published model bundle.
package inference

import (
	"io"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// PredictionColumn is appended to batch prediction output.
const PredictionColumn = "Predicted_Yield"

// DefaultMissingTokens are treated as missing in request values.
var DefaultMissingTokens = []string{"na"}

// Row is one prediction request: column name to value.
type Row map[string]any

// Predictor applies the frequency map, the column encoder and the model of
// a bundle. It is read-only after construction and safe for concurrent
// use.
type Predictor struct {
	bundle *artifact.Bundle
	opts   dataset.Options
}

// Load reads the bundle from the final model directory dir.
func Load(dir string) (*Predictor, error) {
	return LoadFile(filepath.Join(dir, config.BundleFileName))
}

// LoadFile reads the bundle at path.
func LoadFile(path string) (*Predictor, error) {
	b, err := artifact.LoadBundle(path)
	if err != nil {
		return nil, errors.NewStageError(errors.StageInference, "load bundle", err)
	}
	return New(b)
}

// New wraps an already loaded bundle.
func New(b *artifact.Bundle) (*Predictor, error) {
	if err := b.Validate(); err != nil {
		return nil, errors.NewStageError(errors.StageInference, "load bundle", err)
	}
	return &Predictor{
		bundle: b,
		opts:   dataset.Options{MissingTokens: DefaultMissingTokens},
	}, nil
}

// ModelName is the registry name of the bundled model.
func (p *Predictor) ModelName() string {
	return p.bundle.Model.Name()
}

// Metrics returns the evaluation metrics recorded at training time.
func (p *Predictor) Metrics() map[string]metrics.RegressionReport {
	out := make(map[string]metrics.RegressionReport, len(p.bundle.Metrics))
	for k, v := range p.bundle.Metrics {
		out[k] = v
	}
	return out
}

// Predict returns one prediction per row.
func (p *Predictor) Predict(rows []Row) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errors.NewStageError(errors.StageInference, "predict", errors.ErrEmptyData)
	}
	records := make([]map[string]any, len(rows))
	for i, r := range rows {
		records[i] = r
	}
	f, err := dataset.FromRecords(records, p.opts)
	if err != nil {
		return nil, errors.NewStageError(errors.StageInference, "parse rows", err)
	}
	return p.PredictFrame(f)
}

// PredictFrame returns one prediction per row of f. Unseen categories are
// not an error: an unseen frequency-encoded value takes the fallback
// frequency and other unseen categories encode as zeros.
func (p *Predictor) PredictFrame(f *dataset.Frame) ([]float64, error) {
	encoded, err := p.bundle.FrequencyMap.Transform(f)
	if err != nil {
		return nil, errors.NewStageError(errors.StageInference, "frequency encode", err)
	}
	X, err := p.bundle.Encoder.Transform(encoded)
	if err != nil {
		return nil, errors.NewStageError(errors.StageInference, "encode", err)
	}
	pred, err := p.bundle.Model.Predict(X)
	if err != nil {
		return nil, errors.NewStageError(errors.StageInference, "predict", err)
	}
	r, _ := pred.Dims()
	if err := errors.CheckMatrix("inference.Predict", pred, r, 1); err != nil {
		return nil, errors.NewStageError(errors.StageInference, "predict", err)
	}
	return mat.Col(nil, 0, pred), nil
}

// PredictCSV reads rows from r and writes them to w with PredictionColumn
// appended.
func (p *Predictor) PredictCSV(r io.Reader, w io.Writer) error {
	f, err := dataset.ReadCSV(r, p.opts)
	if err != nil {
		return errors.NewStageError(errors.StageInference, "read csv", err)
	}
	if f.NumRows() == 0 {
		return errors.NewStageError(errors.StageInference, "read csv", errors.ErrEmptyData)
	}
	pred, err := p.PredictFrame(f)
	if err != nil {
		return err
	}
	out, err := f.WithColumn(dataset.NumericColumn(PredictionColumn, pred))
	if err != nil {
		return errors.NewStageError(errors.StageInference, "write csv", err)
	}
	if err := dataset.WriteCSV(w, out); err != nil {
		return errors.NewStageError(errors.StageInference, "write csv", err)
	}
	return nil
}
