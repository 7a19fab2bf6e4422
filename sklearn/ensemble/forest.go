// Package ensemble provides tree ensembles for regression: bagged random
// forests and gradient boosting with squared loss.
package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/core/parallel"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// RandomForestName is the registry name of RandomForestRegressor.
const RandomForestName = "RandomForestRegressor"

func init() {
	model.RegisterRegressor(RandomForestName, func() model.Regressor { return NewRandomForestRegressor() })
}

// RandomForestRegressor averages regression trees grown on bootstrap
// samples. Tree t is seeded from (random_state, t), so a fit is
// reproducible regardless of how many workers build it.
type RandomForestRegressor struct {
	state *model.StateManager

	nEstimators     int
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     float64
	bootstrap       bool
	randomState     uint64
	nJobs           int

	trees []*tree.DecisionTreeRegressor
}

// ForestOption configures a RandomForestRegressor.
type ForestOption func(*RandomForestRegressor)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.nEstimators = n }
}

// WithForestMaxDepth limits tree depth. Zero means unlimited.
func WithForestMaxDepth(depth int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.maxDepth = depth }
}

// WithForestMaxFeatures sets the fraction of features tried per split.
func WithForestMaxFeatures(frac float64) ForestOption {
	return func(rf *RandomForestRegressor) { rf.maxFeatures = frac }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(on bool) ForestOption {
	return func(rf *RandomForestRegressor) { rf.bootstrap = on }
}

// WithForestRandomState seeds bootstrap sampling and feature selection.
func WithForestRandomState(seed uint64) ForestOption {
	return func(rf *RandomForestRegressor) { rf.randomState = seed }
}

// WithNJobs bounds the number of trees built concurrently. Values below 1
// mean GOMAXPROCS.
func WithNJobs(n int) ForestOption {
	return func(rf *RandomForestRegressor) { rf.nJobs = n }
}

// NewRandomForestRegressor creates an unfitted forest with 100 trees.
func NewRandomForestRegressor(opts ...ForestOption) *RandomForestRegressor {
	rf := &RandomForestRegressor{
		state:           model.NewStateManager(),
		nEstimators:     100,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     1.0,
		bootstrap:       true,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Name implements model.Regressor.
func (rf *RandomForestRegressor) Name() string { return RandomForestName }

// Fit grows nEstimators trees.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	target, err := columnOf("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n, c := X.Dims()

	trees := make([]*tree.DecisionTreeRegressor, rf.nEstimators)
	err = parallel.ForEach(context.Background(), rf.nEstimators, rf.nJobs, func(_ context.Context, t int) error {
		rng := rand.New(rand.NewPCG(rf.randomState, uint64(t)))
		samples := make([]int, n)
		for i := range samples {
			if rf.bootstrap {
				samples[i] = rng.IntN(n)
			} else {
				samples[i] = i
			}
		}
		dt := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(rf.maxFeatures),
			tree.WithRandomState(rng.Uint64()),
		)
		if err := dt.FitSamples(X, target, samples); err != nil {
			return errors.Wrapf(err, "tree %d", t)
		}
		trees[t] = dt
		return nil
	})
	if err != nil {
		return err
	}

	rf.trees = trees
	rf.state.SetDimensions(c, n)
	rf.state.SetFitted()
	return nil
}

// Predict averages the trees' predictions.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted(RandomForestName, "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, 1000, rf.nJobs, func(start, end int) {
		for i := start; i < end; i++ {
			sum := 0.0
			for _, dt := range rf.trees {
				sum += dt.PredictRow(X, i)
			}
			out.Set(i, 0, sum/float64(len(rf.trees)))
		}
	})
	return out, nil
}

// Score returns R² on X, y.
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// GetFeatureImportances returns the mean importance over all trees.
func (rf *RandomForestRegressor) GetFeatureImportances() []float64 {
	if len(rf.trees) == 0 {
		return nil
	}
	var out []float64
	for _, dt := range rf.trees {
		imp := dt.GetFeatureImportances()
		if out == nil {
			out = make([]float64, len(imp))
		}
		for j, v := range imp {
			out[j] += v / float64(len(rf.trees))
		}
	}
	return out
}

// GetParams implements model.Regressor.
func (rf *RandomForestRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      int(rf.randomState),
		"n_jobs":            rf.nJobs,
	}
}

// SetParams implements model.Regressor.
func (rf *RandomForestRegressor) SetParams(params map[string]interface{}) error {
	if err := model.CheckParamKeys(params, "n_estimators", "max_depth", "min_samples_split",
		"min_samples_leaf", "max_features", "bootstrap", "random_state", "n_jobs"); err != nil {
		return err
	}
	seed := int(rf.randomState)
	if err := setInts(params, map[string]*int{
		"n_estimators":      &rf.nEstimators,
		"max_depth":         &rf.maxDepth,
		"min_samples_split": &rf.minSamplesSplit,
		"min_samples_leaf":  &rf.minSamplesLeaf,
		"random_state":      &seed,
		"n_jobs":            &rf.nJobs,
	}); err != nil {
		return err
	}
	rf.randomState = uint64(seed)
	if v, ok, err := model.ParamFloat(params, "max_features"); err != nil {
		return err
	} else if ok {
		rf.maxFeatures = v
	}
	if v, ok, err := model.ParamBool(params, "bootstrap"); err != nil {
		return err
	} else if ok {
		rf.bootstrap = v
	}
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	return nil
}

// Clone implements model.Regressor.
func (rf *RandomForestRegressor) Clone() model.Regressor {
	c := *rf
	c.state = model.NewStateManager()
	c.trees = nil
	return &c
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, max_depth=%d)", rf.nEstimators, rf.maxDepth)
}

type forestJSON struct {
	State model.ModelState              `json:"state"`
	Trees []*tree.DecisionTreeRegressor `json:"trees"`
}

// MarshalJSON implements json.Marshaler.
func (rf *RandomForestRegressor) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestJSON{State: rf.state.GetState(), Trees: rf.trees})
}

// UnmarshalJSON implements json.Unmarshaler.
func (rf *RandomForestRegressor) UnmarshalJSON(data []byte) error {
	var v forestJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.State.Fitted && len(v.Trees) == 0 {
		return errors.NewValueError("RandomForestRegressor.UnmarshalJSON", "fitted forest has no trees")
	}
	if rf.state == nil {
		rf.state = model.NewStateManager()
	}
	rf.state.SetState(v.State)
	rf.trees = v.Trees
	return nil
}

// columnOf validates X and y and returns y as a slice.
func columnOf(op string, X, y mat.Matrix) ([]float64, error) {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return nil, errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != 1 {
		return nil, errors.NewValueError(op, "y must be a column vector")
	}
	target := mat.Col(nil, 0, y)
	if err := errors.CheckNumericalStability(op, target); err != nil {
		return nil, err
	}
	return target, nil
}

func setInts(params map[string]interface{}, dst map[string]*int) error {
	for key, p := range dst {
		v, ok, err := model.ParamInt(params, key)
		if err != nil {
			return err
		}
		if ok {
			*p = v
		}
	}
	return nil
}
