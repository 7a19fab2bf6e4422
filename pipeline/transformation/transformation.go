// Package transformation is the third pipeline stage: it fits the frequency
// map and the column encoder on the training partition and writes encoded
// matrices for all three partitions.
package transformation

import (
	"context"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/preprocessing"
	"github.com/YuminosukeSato/cropyield/schema"
)

// Stage runs data transformation.
type Stage struct {
	cfg    config.Config
	layout config.Layout
	schema *schema.Schema
	logger log.Logger
}

// New returns a transformation stage.
func New(cfg config.Config, layout config.Layout, s *schema.Schema, logger log.Logger) *Stage {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Stage{
		cfg:    cfg,
		layout: layout,
		schema: s,
		logger: logger.With(log.StageKey, errors.StageTransformation),
	}
}

type partition struct {
	name    string
	src     string
	dst     string
	feature *dataset.Frame
	target  []float64
}

// Run encodes the validated partitions. Encoders are fitted on train only.
func (s *Stage) Run(ctx context.Context, in *artifact.Validation) (*artifact.Transformation, error) {
	start := time.Now()
	s.logger.Info("data transformation started")

	parts := []*partition{
		{name: "train", src: in.ValidTrainFile, dst: s.layout.TransformedTrainFile},
		{name: "validation", src: in.ValidValidationFile, dst: s.layout.TransformedValidationFile},
		{name: "test", src: in.ValidTestFile, dst: s.layout.TransformedTestFile},
	}
	opts := dataset.Options{MissingTokens: s.cfg.Ingestion.MissingTokens}
	for _, p := range parts {
		f, err := dataset.ReadCSVFile(p.src, opts)
		if err != nil {
			return nil, errors.NewStageError(errors.StageTransformation, "read "+p.name, err)
		}
		p.feature, p.target, err = SplitFeatures(f, s.schema, p.name)
		if err != nil {
			return nil, errors.NewStageError(errors.StageTransformation, "split target", err)
		}
	}
	train := parts[0]

	freq := preprocessing.NewFrequencyEncoder(s.schema.FrequencyEncodedColumn)
	if err := freq.Fit(train.feature); err != nil {
		return nil, errors.NewStageError(errors.StageTransformation, "fit frequency map", err)
	}
	s.logger.Info("frequency map fitted",
		log.ColumnKey, freq.Column,
		"categories", len(freq.Counts),
		"fallback", freq.Fallback,
	)
	for _, p := range parts {
		var err error
		if p.feature, err = freq.Transform(p.feature); err != nil {
			return nil, errors.NewStageError(errors.StageTransformation, "frequency encode "+p.name, err)
		}
	}

	enc := preprocessing.NewColumnEncoderForSchema(s.schema)
	if err := enc.Fit(train.feature); err != nil {
		return nil, errors.NewStageError(errors.StageTransformation, "fit encoder", err)
	}
	for _, p := range parts {
		X, err := enc.Transform(p.feature)
		if err != nil {
			return nil, errors.NewStageError(errors.StageTransformation, "encode "+p.name, err)
		}
		if err := artifact.SaveMatrix(p.dst, withTarget(X, p.target)); err != nil {
			return nil, errors.NewStageError(errors.StageTransformation, "write "+p.name, err)
		}
		s.logger.Debug("partition encoded", log.PartitionKey, p.name, log.SamplesKey, len(p.target))
	}

	finalDir := s.layout.FinalModelDir
	saves := []struct {
		path string
		save func(string) error
	}{
		{s.layout.FrequencyMapFile, freq.Save},
		{filepath.Join(finalDir, config.FrequencyMapFileName), freq.Save},
		{s.layout.EncoderFile, enc.Save},
		{filepath.Join(finalDir, config.PreprocessorFileName), enc.Save},
	}
	for _, sv := range saves {
		if err := sv.save(sv.path); err != nil {
			return nil, errors.NewStageError(errors.StageTransformation, "write encoder", err)
		}
	}

	s.logger.Info("data transformation completed",
		log.FeaturesKey, enc.Width(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &artifact.Transformation{
		TrainFile:        s.layout.TransformedTrainFile,
		ValidationFile:   s.layout.TransformedValidationFile,
		TestFile:         s.layout.TransformedTestFile,
		EncoderFile:      s.layout.EncoderFile,
		FrequencyMapFile: s.layout.FrequencyMapFile,
		FeatureNames:     enc.FeatureNames(),
	}, nil
}

// SplitFeatures returns the schema's feature columns and the numeric target
// of f. A missing schema column is a SchemaError.
func SplitFeatures(f *dataset.Frame, s *schema.Schema, partition string) (*dataset.Frame, []float64, error) {
	var missing []string
	for _, name := range append(s.FeatureColumns(), s.TargetColumn) {
		if !f.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.NewMissingColumnsError(partition, missing)
	}

	target, err := f.Numeric(s.TargetColumn)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range target {
		if math.IsNaN(v) {
			return nil, nil, errors.NewValueError("SplitFeatures", "missing target in "+partition+" at row "+strconv.Itoa(i))
		}
	}
	features, err := f.Select(s.FeatureColumns()...)
	if err != nil {
		return nil, nil, err
	}
	return features, target, nil
}

func withTarget(X *mat.Dense, y []float64) *mat.Dense {
	r, c := X.Dims()
	out := mat.NewDense(r, c+1, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(X)
	out.SetCol(c, y)
	return out
}
