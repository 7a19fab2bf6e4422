package trainer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/internal/synthetic"
	"github.com/YuminosukeSato/cropyield/linear"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pipeline/transformation"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/schema"
	"github.com/YuminosukeSato/cropyield/sklearn/ensemble"
	"github.com/YuminosukeSato/cropyield/sklearn/model_selection"
	"github.com/YuminosukeSato/cropyield/sklearn/tree"
	"github.com/YuminosukeSato/cropyield/tracking"
)

type fixture struct {
	cfg    config.Config
	layout config.Layout
	in     *artifact.Transformation
}

// prepare encodes synthetic partitions with the transformation stage.
func prepare(t *testing.T, opts synthetic.Options) fixture {
	t.Helper()
	s, err := schema.Default()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.ArtifactDir = t.TempDir()
	cfg.FinalModelDir = t.TempDir()
	cfg.Tracking.Dir = t.TempDir()
	layout := config.NewLayout(cfg, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))

	dir := t.TempDir()
	validated := &artifact.Validation{
		Status:              true,
		ValidTrainFile:      filepath.Join(dir, "train.csv"),
		ValidValidationFile: filepath.Join(dir, "validation.csv"),
		ValidTestFile:       filepath.Join(dir, "test.csv"),
	}
	for i, tc := range []struct {
		path string
		n    int
	}{
		{validated.ValidTrainFile, 240},
		{validated.ValidValidationFile, 80},
		{validated.ValidTestFile, 80},
	} {
		records := synthetic.Records(tc.n, uint64(100+i), opts)
		for _, r := range records {
			delete(r, "_id")
		}
		f, err := dataset.FromRecords(records, dataset.Options{ColumnOrder: s.ColumnNames()})
		require.NoError(t, err)
		require.NoError(t, dataset.WriteCSVFile(tc.path, f))
	}

	in, err := transformation.New(cfg, layout, s, nil).Run(context.Background(), validated)
	require.NoError(t, err)
	return fixture{cfg: cfg, layout: layout, in: in}
}

func smallCandidates(seed uint64) []Candidate {
	return []Candidate{
		{Name: "LinearRegression", Estimator: linear.NewLinearRegression()},
		{
			Name:      "DecisionTree",
			Estimator: tree.NewDecisionTreeRegressor(tree.WithRandomState(seed)),
			Grid:      model_selection.ParamGrid{"max_depth": {3, 6}},
		},
		{
			Name:      "GradientBoosting",
			Estimator: ensemble.NewGradientBoostingRegressor(ensemble.WithBoostingRandomState(seed)),
			Grid:      model_selection.ParamGrid{"n_estimators": {50}, "max_depth": {3}},
		},
	}
}

func TestRunSelectsLinearModelOnLinearData(t *testing.T) {
	fx := prepare(t, synthetic.Options{Noise: 200})
	logger, _ := log.NewTestLogger(log.LevelDebug)
	stage := New(fx.cfg, fx.layout, logger, WithCandidates(smallCandidates(42)))

	out, err := stage.Run(context.Background(), fx.in)
	require.NoError(t, err)

	assert.Equal(t, "LinearRegression", out.CandidateName)
	assert.Equal(t, linear.Name, out.ModelName)
	assert.Len(t, out.ValidationScores, 3)
	for name, score := range out.ValidationScores {
		assert.LessOrEqual(t, score, out.ValidationScores["LinearRegression"], name)
	}
	assert.Greater(t, out.TestMetrics.R2, 0.95)
	assert.Greater(t, out.TrainMetrics.R2, 0.95)

	bundle, err := artifact.LoadBundle(out.BundleFile)
	require.NoError(t, err)
	assert.Equal(t, linear.Name, bundle.Model.Name())
	assert.InDelta(t, out.TestMetrics.R2, bundle.Metrics[artifact.PartitionTest].R2, 1e-12)
	assert.FileExists(t, out.TrainedModelFile)
	assert.FileExists(t, filepath.Join(fx.cfg.FinalModelDir, config.ModelOnlyFileName))
	assert.FileExists(t, out.PlotFile)

	require.NotEmpty(t, out.RunID)
	run, err := tracking.NewLocalStore(fx.cfg.Tracking.Dir).LoadRun(out.RunID)
	require.NoError(t, err)
	assert.InDelta(t, out.TestMetrics.R2, run.Metrics["test_r2_score"], 1e-12)
	assert.Equal(t, linear.Name, run.Params["model_name"])

	assert.True(t, logger.ContainsMessage("model selected"))
}

func TestRunTieGoesToEarlierCandidate(t *testing.T) {
	fx := prepare(t, synthetic.Options{Noise: 200})
	stage := New(fx.cfg, fx.layout, nil, WithCandidates([]Candidate{
		{Name: "first", Estimator: linear.NewLinearRegression()},
		{Name: "second", Estimator: linear.NewLinearRegression()},
	}))

	out, err := stage.Run(context.Background(), fx.in)
	require.NoError(t, err)
	assert.Equal(t, "first", out.CandidateName)
	assert.Equal(t, out.ValidationScores["first"], out.ValidationScores["second"])
}

// brokenRegressor panics on Fit.
type brokenRegressor struct{}

func (brokenRegressor) Fit(X, y mat.Matrix) error                { panic("index out of range") }
func (brokenRegressor) Predict(X mat.Matrix) (mat.Matrix, error) { return nil, errors.ErrEmptyData }
func (brokenRegressor) Score(X, y mat.Matrix) (float64, error)   { return 0, errors.ErrEmptyData }
func (brokenRegressor) Name() string                             { return "Broken" }
func (brokenRegressor) GetParams() map[string]interface{}        { return map[string]interface{}{} }
func (brokenRegressor) SetParams(map[string]interface{}) error   { return nil }
func (b brokenRegressor) Clone() model.Regressor                 { return b }

func TestRunSkipsFailingCandidate(t *testing.T) {
	fx := prepare(t, synthetic.Options{Noise: 200})
	logger, _ := log.NewTestLogger(log.LevelDebug)
	stage := New(fx.cfg, fx.layout, logger, WithCandidates([]Candidate{
		{Name: "Broken", Estimator: brokenRegressor{}},
		{Name: "BrokenGrid", Estimator: brokenRegressor{}, Grid: model_selection.ParamGrid{"alpha": {1, 2}}},
		{Name: "LinearRegression", Estimator: linear.NewLinearRegression()},
	}))

	out, err := stage.Run(context.Background(), fx.in)
	require.NoError(t, err)
	assert.Equal(t, "LinearRegression", out.CandidateName)
	assert.NotContains(t, out.ValidationScores, "Broken")
	assert.NotContains(t, out.ValidationScores, "BrokenGrid")
	assert.True(t, logger.ContainsField(log.ErrorCodeKey, log.ErrorCandidateFailed))
}

func TestRunAllCandidatesFail(t *testing.T) {
	fx := prepare(t, synthetic.Options{Noise: 200})
	stage := New(fx.cfg, fx.layout, nil, WithCandidates([]Candidate{
		{Name: "Broken", Estimator: brokenRegressor{}},
	}))

	_, err := stage.Run(context.Background(), fx.in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoCandidate))
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.StageTrainer, se.Stage)
	assert.NoFileExists(t, filepath.Join(fx.cfg.FinalModelDir, config.BundleFileName))
}

type failingSink struct{}

func (failingSink) Record(context.Context, *tracking.Run) error {
	return errors.New("tracking server unreachable")
}

func TestRunTrackingFailureIsNotFatal(t *testing.T) {
	fx := prepare(t, synthetic.Options{Noise: 200})
	logger, _ := log.NewTestLogger(log.LevelDebug)
	stage := New(fx.cfg, fx.layout, logger,
		WithCandidates([]Candidate{{Name: "LinearRegression", Estimator: linear.NewLinearRegression()}}),
		WithSink(failingSink{}),
	)

	out, err := stage.Run(context.Background(), fx.in)
	require.NoError(t, err)
	assert.Empty(t, out.RunID)
	assert.FileExists(t, out.BundleFile)
	assert.True(t, logger.ContainsField(log.ErrorCodeKey, log.ErrorTrackingFailed))
}

func TestDefaultCandidates(t *testing.T) {
	c := DefaultCandidates(42)
	names := make([]string, len(c))
	for i := range c {
		names[i] = c[i].Name
	}
	assert.Equal(t, []string{"LinearRegression", "DecisionTree", "RandomForest", "GradientBoosting"}, names)
	assert.Empty(t, c[0].Grid)
	assert.Equal(t, 9, c[1].Grid.Size())
	assert.Equal(t, 4, c[2].Grid.Size())
	assert.Equal(t, 8, c[3].Grid.Size())
}
