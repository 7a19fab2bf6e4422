// Package trainer is the last pipeline stage: it tunes every candidate
// model family, keeps the one with the best validation R² and publishes it
// together with the fitted encoders.
package trainer

import (
	"context"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/preprocessing"
	"github.com/YuminosukeSato/cropyield/report"
	"github.com/YuminosukeSato/cropyield/sklearn/model_selection"
	"github.com/YuminosukeSato/cropyield/tracking"
)

// Stage runs model training and selection.
type Stage struct {
	cfg        config.Config
	layout     config.Layout
	candidates []Candidate
	sink       tracking.Sink
	logger     log.Logger
	now        func() time.Time
}

// Option configures a Stage.
type Option func(*Stage)

// WithCandidates replaces the default candidate list.
func WithCandidates(c []Candidate) Option {
	return func(s *Stage) { s.candidates = c }
}

// WithSink sets the tracking sink. The default is built from the tracking
// config.
func WithSink(sink tracking.Sink) Option {
	return func(s *Stage) { s.sink = sink }
}

// New returns a trainer stage.
func New(cfg config.Config, layout config.Layout, logger log.Logger, opts ...Option) *Stage {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Stage{
		cfg:    cfg,
		layout: layout,
		logger: logger.With(log.StageKey, errors.StageTrainer),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.candidates == nil {
		s.candidates = DefaultCandidates(cfg.Trainer.RandomSeed)
	}
	if s.sink == nil {
		s.sink = tracking.FromConfig(cfg.Tracking, logger)
	}
	return s
}

type split struct {
	X, y *mat.Dense
}

// Run selects and publishes a model for in.
func (s *Stage) Run(ctx context.Context, in *artifact.Transformation) (*artifact.ModelTrainer, error) {
	start := time.Now()
	s.logger.Info("model training started", "candidates", len(s.candidates))

	var parts [3]split
	for i, path := range []string{in.TrainFile, in.ValidationFile, in.TestFile} {
		m, err := artifact.LoadMatrix(path)
		if err != nil {
			return nil, errors.NewStageError(errors.StageTrainer, "load matrix", err)
		}
		X, y, err := artifact.SplitXY(m)
		if err != nil {
			return nil, errors.NewStageError(errors.StageTrainer, "load matrix", err)
		}
		parts[i] = split{X: X, y: y}
	}
	train, val, test := parts[0], parts[1], parts[2]

	best, bestName, scores, err := s.selectModel(ctx, train, val)
	if err != nil {
		return nil, errors.NewStageError(errors.StageTrainer, "select model", err)
	}

	trainReport, testPred, testReport, err := s.evaluate(best, train, test)
	if err != nil {
		return nil, errors.NewStageError(errors.StageTrainer, "evaluate", err)
	}
	s.logger.Info("model selected",
		log.CandidateKey, bestName,
		log.ModelNameKey, best.Name(),
		log.HyperParamsKey, best.GetParams(),
		log.R2ScoreKey, testReport.R2,
		log.RMSEKey, testReport.RMSE,
		log.MAEKey, testReport.MAE,
	)

	out := &artifact.ModelTrainer{
		CandidateName:    bestName,
		ModelName:        best.Name(),
		Params:           best.GetParams(),
		TrainMetrics:     trainReport,
		TestMetrics:      testReport,
		ValidationScores: scores,
		TrainedModelFile: s.layout.TrainedModelFile,
		BundleFile:       filepath.Join(s.layout.FinalModelDir, config.BundleFileName),
	}
	modelOnly := filepath.Join(s.layout.FinalModelDir, config.ModelOnlyFileName)
	if err := s.publish(in, best, trainReport, testReport, modelOnly, out); err != nil {
		return nil, errors.NewStageError(errors.StageTrainer, "save model", err)
	}

	out.RunID = s.track(ctx, best, trainReport, testReport, modelOnly)

	yTest := mat.Col(nil, 0, test.y)
	if err := report.PredictionPlot(s.layout.PredictionPlotFile, best.Name(), yTest, testPred); err != nil {
		s.logger.Warn("prediction plot skipped", "error", err)
	} else {
		out.PlotFile = s.layout.PredictionPlotFile
		s.logger.Debug("prediction plot written", log.ArtifactPathKey, out.PlotFile)
	}

	s.logger.Info("model training completed", log.DurationMsKey, time.Since(start).Milliseconds())
	return out, nil
}

// selectModel fits every candidate and returns the one with the highest
// validation R². A candidate that fails or panics is skipped.
func (s *Stage) selectModel(ctx context.Context, train, val split) (model.Regressor, string, map[string]float64, error) {
	var (
		best      model.Regressor
		bestName  string
		bestScore = math.Inf(-1)
		scores    = make(map[string]float64, len(s.candidates))
	)
	for _, c := range s.candidates {
		logger := s.logger.With(log.CandidateKey, c.Name)
		var (
			fitted model.Regressor
			score  float64
		)
		err := errors.SafeExecute("trainer."+c.Name, func() error {
			var err error
			fitted, score, err = s.fitCandidate(ctx, c, train, val, logger)
			return err
		})
		if err == nil && math.IsNaN(score) {
			err = errors.NewNumericalInstabilityError("validation score", []float64{score}, 0)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", nil, ctx.Err()
			}
			logger.Warn("candidate failed", log.ErrorCodeKey, log.ErrorCandidateFailed, "error", err)
			continue
		}

		scores[c.Name] = score
		logger.Info("candidate scored", log.R2ScoreKey, score, log.PartitionKey, "validation")
		if score > bestScore {
			best, bestName, bestScore = fitted, c.Name, score
		}
	}
	if best == nil {
		return nil, "", nil, errors.Wrapf(errors.ErrNoCandidate, "%d candidates failed", len(s.candidates))
	}
	return best, bestName, scores, nil
}

// fitCandidate tunes c on train when it has a grid, otherwise fits it
// directly, and scores the result on val.
func (s *Stage) fitCandidate(ctx context.Context, c Candidate, train, val split, logger log.Logger) (model.Regressor, float64, error) {
	var fitted model.Regressor
	if len(c.Grid) == 0 {
		fitted = c.Estimator.Clone()
		if err := fitted.Fit(train.X, train.y); err != nil {
			return nil, 0, err
		}
	} else {
		gs := model_selection.NewGridSearchCV(c.Estimator, c.Grid, s.cfg.Trainer.CVFolds)
		gs.NJobs = s.cfg.Trainer.NJobs
		gs.Logger = logger
		if err := gs.Fit(ctx, train.X, train.y); err != nil {
			return nil, 0, err
		}
		fitted = gs.BestEstimator
	}
	score, err := fitted.Score(val.X, val.y)
	if err != nil {
		return nil, 0, err
	}
	return fitted, score, nil
}

func (s *Stage) evaluate(best model.Regressor, train, test split) (metrics.RegressionReport, []float64, metrics.RegressionReport, error) {
	trainPred, err := best.Predict(train.X)
	if err != nil {
		return metrics.RegressionReport{}, nil, metrics.RegressionReport{}, err
	}
	testPred, err := best.Predict(test.X)
	if err != nil {
		return metrics.RegressionReport{}, nil, metrics.RegressionReport{}, err
	}
	trainReport, err := metrics.Report(train.y, trainPred)
	if err != nil {
		return metrics.RegressionReport{}, nil, metrics.RegressionReport{}, err
	}
	testReport, err := metrics.Report(test.y, testPred)
	if err != nil {
		return metrics.RegressionReport{}, nil, metrics.RegressionReport{}, err
	}
	return trainReport, mat.Col(nil, 0, testPred), testReport, nil
}

// publish writes the bundle to the run directory and the final model
// directory, and the bare model next to it.
func (s *Stage) publish(in *artifact.Transformation, best model.Regressor, trainReport, testReport metrics.RegressionReport, modelOnly string, out *artifact.ModelTrainer) error {
	freq, err := preprocessing.LoadFrequencyEncoder(in.FrequencyMapFile)
	if err != nil {
		return err
	}
	enc, err := preprocessing.LoadColumnEncoder(in.EncoderFile)
	if err != nil {
		return err
	}
	if w := enc.Width(); len(in.FeatureNames) > 0 && w != len(in.FeatureNames) {
		return errors.NewDimensionError("publish", len(in.FeatureNames), w, 1)
	}

	bundle := &artifact.Bundle{
		FrequencyMap: freq,
		Encoder:      enc,
		Model:        best,
		Metrics: map[string]metrics.RegressionReport{
			artifact.PartitionTrain: trainReport,
			artifact.PartitionTest:  testReport,
		},
		CreatedAt: s.now().UTC(),
	}
	for _, path := range []string{out.TrainedModelFile, out.BundleFile} {
		if err := bundle.Save(path); err != nil {
			return err
		}
		s.logger.Debug("bundle written", log.ArtifactPathKey, path)
	}
	return artifact.SaveModel(modelOnly, best)
}

// track records the run. Tracking never fails the stage.
func (s *Stage) track(ctx context.Context, best model.Regressor, trainReport, testReport metrics.RegressionReport, modelOnly string) string {
	run := tracking.NewRun(s.cfg.Tracking.Experiment, best.Name())
	run.Params = best.GetParams()
	run.Params["model_name"] = best.Name()
	run.Metrics = map[string]float64{
		"train_r2_score": trainReport.R2,
		"train_rmse":     trainReport.RMSE,
		"train_mae":      trainReport.MAE,
		"test_r2_score":  testReport.R2,
		"test_rmse":      testReport.RMSE,
		"test_mae":       testReport.MAE,
	}
	run.ModelFile = modelOnly

	if err := s.sink.Record(ctx, run); err != nil {
		s.logger.Warn("run not tracked",
			log.RunIDKey, run.ID,
			log.ErrorCodeKey, log.ErrorTrackingFailed,
			"error", err,
		)
		return ""
	}
	s.logger.Info("run tracked", log.RunIDKey, run.ID)
	return run.ID
}
