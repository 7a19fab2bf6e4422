// Package pipeline runs the training stages in order: ingestion,
// validation, transformation and model training. Each stage consumes the
// artifact of the previous one.
package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pipeline/ingestion"
	"github.com/YuminosukeSato/cropyield/pipeline/trainer"
	"github.com/YuminosukeSato/cropyield/pipeline/transformation"
	"github.com/YuminosukeSato/cropyield/pipeline/validation"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/schema"
)

// TrainingPipeline is one batch training run.
type TrainingPipeline struct {
	Config config.Config
	Layout config.Layout
	Schema *schema.Schema
	Source ingestion.RecordSource
	Logger log.Logger

	// TrainerOptions are passed to the trainer stage.
	TrainerOptions []trainer.Option
}

// New builds a pipeline whose artifacts go to a directory named after now.
func New(cfg config.Config, s *schema.Schema, source ingestion.RecordSource, logger log.Logger, now time.Time) *TrainingPipeline {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &TrainingPipeline{
		Config: cfg,
		Layout: config.NewLayout(cfg, now),
		Schema: s,
		Source: source,
		Logger: logger,
	}
}

// Run executes every stage and returns the trainer artifact, or the first
// stage error unchanged.
func (p *TrainingPipeline) Run(ctx context.Context) (*artifact.ModelTrainer, error) {
	start := time.Now()
	logger := p.Logger.With(log.RunIDKey, p.Layout.Timestamp)
	logger.Info("training pipeline started", "artifact_dir", p.Layout.RunDir)

	ingested, err := ingestion.New(p.Config, p.Layout, p.Schema, p.Source, logger).Run(ctx)
	if err != nil {
		return nil, err
	}
	validated, err := validation.New(p.Config, p.Layout, p.Schema, logger).Run(ctx, ingested)
	if err != nil {
		return nil, err
	}
	transformed, err := transformation.New(p.Config, p.Layout, p.Schema, logger).Run(ctx, validated)
	if err != nil {
		return nil, err
	}
	trained, err := trainer.New(p.Config, p.Layout, logger, p.TrainerOptions...).Run(ctx, transformed)
	if err != nil {
		return nil, err
	}

	logger.Info("training pipeline completed",
		log.ModelNameKey, trained.ModelName,
		log.R2ScoreKey, trained.TestMetrics.R2,
		"drift_free", validated.Status,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return trained, nil
}
