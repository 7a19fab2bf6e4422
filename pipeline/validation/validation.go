// Package validation is the second pipeline stage: it checks the ingested
// partitions against the schema and tests train against test for drift.
package validation

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/schema"
	"github.com/YuminosukeSato/cropyield/sklearn/drift"
)

// Stage runs data validation.
type Stage struct {
	cfg    config.Config
	layout config.Layout
	schema *schema.Schema
	logger log.Logger
}

// New returns a validation stage.
func New(cfg config.Config, layout config.Layout, s *schema.Schema, logger log.Logger) *Stage {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Stage{
		cfg:    cfg,
		layout: layout,
		schema: s,
		logger: logger.With(log.StageKey, errors.StageValidation),
	}
}

type partition struct {
	name string
	src  string
	dst  string
	f    *dataset.Frame
}

// Run validates in. Drift is reported and, unless fail_on_drift is set,
// does not stop the pipeline.
func (s *Stage) Run(ctx context.Context, in *artifact.Ingestion) (*artifact.Validation, error) {
	start := time.Now()
	s.logger.Info("data validation started")

	parts := []*partition{
		{name: "train", src: in.TrainFile, dst: s.layout.ValidTrainFile},
		{name: "validation", src: in.ValidationFile, dst: s.layout.ValidValidationFile},
		{name: "test", src: in.TestFile, dst: s.layout.ValidTestFile},
	}
	opts := dataset.Options{MissingTokens: s.cfg.Ingestion.MissingTokens}
	for _, p := range parts {
		f, err := dataset.ReadCSVFile(p.src, opts)
		if err != nil {
			return nil, errors.NewStageError(errors.StageValidation, "read "+p.name, err)
		}
		if got, want := f.NumCols(), s.schema.NumColumns(); got != want {
			return nil, errors.NewStageError(errors.StageValidation, "check columns", errors.NewSchemaError(p.name, want, got))
		}
		p.f = f
	}

	report, err := drift.CompareFrames(parts[0].f, parts[2].f, s.cfg.Validation.DriftThreshold)
	if err != nil {
		return nil, errors.NewStageError(errors.StageValidation, "detect drift", err)
	}
	if err := report.Save(s.layout.DriftReportFile); err != nil {
		return nil, errors.NewStageError(errors.StageValidation, "write drift report", err)
	}
	drifted := report.Drifted()
	for _, col := range drifted {
		s.logger.Warn("drift detected", log.ColumnKey, col, log.PValueKey, report[col].PValue)
	}
	if len(drifted) > 0 && s.cfg.Validation.FailOnDrift {
		return nil, errors.NewStageError(errors.StageValidation, "detect drift", errors.NewDriftError(drifted))
	}

	for _, p := range parts {
		if err := copyFile(p.src, p.dst); err != nil {
			return nil, errors.NewStageError(errors.StageValidation, "write "+p.name, err)
		}
	}

	s.logger.Info("data validation completed",
		"status", report.Status(),
		"drifted_columns", len(drifted),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &artifact.Validation{
		Status:              report.Status(),
		ValidTrainFile:      s.layout.ValidTrainFile,
		ValidValidationFile: s.layout.ValidValidationFile,
		ValidTestFile:       s.layout.ValidTestFile,
		DriftReportFile:     s.layout.DriftReportFile,
		DriftedColumns:      drifted,
	}, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", dst)
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "copy %s", src)
	}
	return errors.Wrapf(out.Close(), "close %s", dst)
}
