// Package cropyield trains and serves a regression model that predicts crop
// yield (hg/ha) from area, crop, season, item, year, rainfall, pesticide use
// and temperature.
//
// Training is a batch pipeline of four stages, each consuming the artifact
// of the previous one:
//
//   - pipeline/ingestion: fetch records from MongoDB, drop rows without a
//     target, impute numeric medians, filter IQR outliers, split 60/20/20
//   - pipeline/validation: check the column count against the schema and run
//     a two-sample Kolmogorov-Smirnov drift test between train and test
//   - pipeline/transformation: frequency-encode Area, standardize numeric
//     columns and one-hot encode the remaining categoricals
//   - pipeline/trainer: grid-search LinearRegression, DecisionTree,
//     RandomForest and GradientBoosting, keep the best by test R², publish
//     the model bundle and record the run
//
// Inference (package inference) loads the published bundle and appends
// Predicted_Yield to a batch of rows. The same encoders fitted on the
// training partition are applied unchanged.
//
// # Quick Start
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s, err := schema.Load(cfg.SchemaPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := mongo.Connect(ctx, cfg.Mongo.URL, cfg.Mongo.Timeout, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trained, err := pipeline.New(cfg, s, store, logger, time.Now()).Run(ctx)
//
//	p, err := inference.Load(cfg.FinalModelDir)
//	preds, err := p.Predict([]inference.Row{{"Area": "India", ...}})
//
// The cropyield command (cmd/cropyield) wraps the same calls as the train,
// predict and load-data subcommands.
//
// # Packages
//
//   - config: viper configuration and the per-run artifact layout
//   - schema: the YAML column descriptor
//   - dataset: column frames, CSV and record conversion, cleaning and splits
//   - preprocessing: frequency encoder, scaler and column encoder
//   - linear, sklearn/tree, sklearn/ensemble: regressors
//   - sklearn/model_selection: k-fold and grid search
//   - sklearn/drift: Kolmogorov-Smirnov drift detection
//   - metrics: R², RMSE and MAE
//   - storage/mongo: record source and bulk loader
//   - tracking: local and Prometheus Pushgateway run tracking
//   - report: prediction scatter plots
//   - core/model, core/parallel: estimator interfaces, persistence and workers
//   - pkg/errors, pkg/log: error types and structured logging
package cropyield
