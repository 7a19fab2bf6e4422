package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/storage/mongo"
)

func (c *cli) newLoadDataCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "load-data <file.csv>",
		Short:   "Insert the rows of a CSV file into the configured collection",
		Args:    cobra.ExactArgs(1),
		Example: `  MONGO_DB_URL=mongodb://localhost:27017 cropyield load-data data/crop_yield.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrapf(err, "open %s", path)
			}
			defer f.Close()

			ctx := cmd.Context()
			store, err := mongo.Connect(ctx, c.cfg.Mongo.URL, c.cfg.Mongo.Timeout, c.logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(ctx); err != nil {
					c.logger.Warn("closing record store", "error", err)
				}
			}()

			n, err := mongo.LoadCSV(ctx, store, c.cfg.Mongo.Database, c.cfg.Mongo.Collection, f,
				dataset.Options{MissingTokens: c.cfg.Ingestion.MissingTokens})
			if err != nil {
				return err
			}
			c.logger.Info("records loaded",
				log.SamplesKey, n,
				"database", c.cfg.Mongo.Database,
				"collection", c.cfg.Mongo.Collection,
			)
			return nil
		},
	}
}
