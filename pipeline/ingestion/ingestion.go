// Package ingestion is the first pipeline stage: it pulls raw records from
// the document store, cleans them and writes the train, validation and test
// partitions.
package ingestion

import (
	"context"
	"time"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/schema"
)

// IDField is the document key the store adds to every record.
const IDField = "_id"

// RecordSource returns every document of a collection as a record.
// storage/mongo.Store implements it.
type RecordSource interface {
	FetchAll(ctx context.Context, database, collection string) ([]map[string]any, error)
}

// Stage runs data ingestion.
type Stage struct {
	cfg    config.Config
	layout config.Layout
	schema *schema.Schema
	source RecordSource
	logger log.Logger
}

// New returns an ingestion stage.
func New(cfg config.Config, layout config.Layout, s *schema.Schema, source RecordSource, logger log.Logger) *Stage {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Stage{
		cfg:    cfg,
		layout: layout,
		schema: s,
		source: source,
		logger: logger.With(log.StageKey, errors.StageIngestion),
	}
}

// Run fetches, cleans, persists and splits the dataset.
func (s *Stage) Run(ctx context.Context) (*artifact.Ingestion, error) {
	start := time.Now()
	s.logger.Info("data ingestion started")

	raw, err := s.fetch(ctx)
	if err != nil {
		return nil, errors.NewStageError(errors.StageIngestion, "fetch", err)
	}

	cleaned, err := s.clean(raw)
	if err != nil {
		return nil, errors.NewStageError(errors.StageIngestion, "clean", err)
	}
	if err := dataset.WriteCSVFile(s.layout.FeatureStoreFile, cleaned); err != nil {
		return nil, errors.NewStageError(errors.StageIngestion, "write feature store", err)
	}

	in := s.cfg.Ingestion
	parts, err := dataset.SplitThreeWay(cleaned, in.TrainRatio, in.ValidationRatio, in.TestRatio, in.RandomSeed)
	if err != nil {
		return nil, errors.NewStageError(errors.StageIngestion, "split", err)
	}
	for path, f := range map[string]*dataset.Frame{
		s.layout.TrainFile:      parts.Train,
		s.layout.ValidationFile: parts.Validation,
		s.layout.TestFile:       parts.Test,
	} {
		if err := dataset.WriteCSVFile(path, f); err != nil {
			return nil, errors.NewStageError(errors.StageIngestion, "write partition", err)
		}
	}

	s.logger.Info("data ingestion completed",
		log.SamplesKey, cleaned.NumRows(),
		log.DroppedKey, raw.NumRows()-cleaned.NumRows(),
		"train_rows", parts.Train.NumRows(),
		"validation_rows", parts.Validation.NumRows(),
		"test_rows", parts.Test.NumRows(),
		log.RandomSeedKey, in.RandomSeed,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &artifact.Ingestion{
		FeatureStoreFile: s.layout.FeatureStoreFile,
		TrainFile:        s.layout.TrainFile,
		ValidationFile:   s.layout.ValidationFile,
		TestFile:         s.layout.TestFile,
		Rows:             cleaned.NumRows(),
		Dropped:          raw.NumRows() - cleaned.NumRows(),
	}, nil
}

// fetch reads the collection into a frame, without the store's id field and
// with sentinel tokens turned into missing values.
func (s *Stage) fetch(ctx context.Context) (*dataset.Frame, error) {
	db, coll := s.cfg.Mongo.Database, s.cfg.Mongo.Collection
	records, err := s.source.FetchAll(ctx, db, coll)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "collection %s.%s has no records", db, coll)
	}
	for _, r := range records {
		delete(r, IDField)
	}
	f, err := dataset.FromRecords(records, dataset.Options{
		MissingTokens: s.cfg.Ingestion.MissingTokens,
		ColumnOrder:   s.schema.ColumnNames(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("records fetched", log.SamplesKey, f.NumRows(), log.FeaturesKey, f.NumCols())
	return f, nil
}

// clean drops rows without a target, imputes medians and removes outliers,
// in that order. Medians are taken after the target drop.
func (s *Stage) clean(f *dataset.Frame) (*dataset.Frame, error) {
	target := s.schema.TargetColumn
	if _, err := f.Numeric(target); err != nil {
		return nil, err
	}
	out, err := f.DropMissing(target)
	if err != nil {
		return nil, err
	}
	if dropped := f.NumRows() - out.NumRows(); dropped > 0 {
		s.logger.Info("dropped rows without target", log.ColumnKey, target, log.DroppedKey, dropped)
	}

	out, medians, err := dataset.ImputeMedian(out, s.cfg.Ingestion.ImputeColumns...)
	if err != nil {
		return nil, err
	}
	for col, m := range medians {
		s.logger.Debug("imputed median", log.ColumnKey, col, "median", m)
	}

	before := out.NumRows()
	out, bounds, err := dataset.FilterIQRSequential(out, s.cfg.Ingestion.OutlierColumns, s.cfg.Ingestion.IQRMultiplier)
	if err != nil {
		return nil, err
	}
	for col, b := range bounds {
		s.logger.Debug("outlier bounds", log.ColumnKey, col, "lower", b.Lower, "upper", b.Upper)
	}
	s.logger.Info("removed outliers", log.DroppedKey, before-out.NumRows())

	if out.NumRows() == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "no rows left after cleaning")
	}
	return out, nil
}
