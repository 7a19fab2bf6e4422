package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cropyield/pipeline"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/schema"
	"github.com/YuminosukeSato/cropyield/storage/mongo"
)

func (c *cli) newTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run ingestion, validation, transformation and model training",
		Args:  cobra.NoArgs,
		Example: `  cropyield train
  cropyield train --config config.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.train(cmd.Context())
		},
	}
}

func (c *cli) train(ctx context.Context) error {
	s, err := schema.Load(c.cfg.SchemaPath)
	if err != nil {
		return err
	}

	store, err := mongo.Connect(ctx, c.cfg.Mongo.URL, c.cfg.Mongo.Timeout, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			c.logger.Warn("closing record store", "error", err)
		}
	}()

	trained, err := pipeline.New(c.cfg, s, store, c.logger, c.now()).Run(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("model published",
		log.ModelNameKey, trained.ModelName,
		log.ArtifactPathKey, trained.BundleFile,
		log.RunIDKey, trained.RunID,
		log.R2ScoreKey, trained.TestMetrics.R2,
	)
	return nil
}
