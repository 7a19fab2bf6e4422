package ensemble

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/core/parallel"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/sklearn/tree"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// GradientBoostingName is the registry name of GradientBoostingRegressor.
const GradientBoostingName = "GradientBoostingRegressor"

func init() {
	model.RegisterRegressor(GradientBoostingName, func() model.Regressor { return NewGradientBoostingRegressor() })
}

// GradientBoostingRegressor fits an additive model of shallow trees to the
// residuals of the squared loss. The initial prediction is the mean of y.
type GradientBoostingRegressor struct {
	state *model.StateManager

	nEstimators     int
	learningRate    float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	subsample       float64
	randomState     uint64

	init  float64
	trees []*tree.DecisionTreeRegressor
}

// BoostingOption configures a GradientBoostingRegressor.
type BoostingOption func(*GradientBoostingRegressor)

// WithStages sets the number of boosting stages.
func WithStages(n int) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.nEstimators = n }
}

// WithLearningRate shrinks the contribution of each tree.
func WithLearningRate(lr float64) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.learningRate = lr }
}

// WithBoostingMaxDepth limits the depth of each tree.
func WithBoostingMaxDepth(depth int) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.maxDepth = depth }
}

// WithSubsample sets the fraction of rows drawn without replacement for
// each stage. 1 uses every row.
func WithSubsample(frac float64) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.subsample = frac }
}

// WithBoostingRandomState seeds row subsampling.
func WithBoostingRandomState(seed uint64) BoostingOption {
	return func(gb *GradientBoostingRegressor) { gb.randomState = seed }
}

// NewGradientBoostingRegressor creates an unfitted model with scikit-learn
// defaults: 100 stages, learning rate 0.1, depth 3.
func NewGradientBoostingRegressor(opts ...BoostingOption) *GradientBoostingRegressor {
	gb := &GradientBoostingRegressor{
		state:           model.NewStateManager(),
		nEstimators:     100,
		learningRate:    0.1,
		maxDepth:        3,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		subsample:       1.0,
	}
	for _, opt := range opts {
		opt(gb)
	}
	return gb
}

// Name implements model.Regressor.
func (gb *GradientBoostingRegressor) Name() string { return GradientBoostingName }

func (gb *GradientBoostingRegressor) validate() error {
	switch {
	case gb.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", gb.nEstimators)
	case gb.learningRate <= 0:
		return errors.NewValidationError("learning_rate", "must be > 0", gb.learningRate)
	case gb.subsample <= 0 || gb.subsample > 1:
		return errors.NewValidationError("subsample", "must be in (0, 1]", gb.subsample)
	}
	return nil
}

// Fit runs nEstimators boosting stages.
func (gb *GradientBoostingRegressor) Fit(X, y mat.Matrix) error {
	if err := gb.validate(); err != nil {
		return err
	}
	target, err := columnOf("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	n, c := X.Dims()

	gb.init = stat.Mean(target, nil)
	current := make([]float64, n)
	for i := range current {
		current[i] = gb.init
	}
	residual := make([]float64, n)
	rng := rand.New(rand.NewPCG(gb.randomState, gb.randomState))

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	nSub := int(gb.subsample * float64(n))
	if nSub < 1 {
		nSub = 1
	}

	trees := make([]*tree.DecisionTreeRegressor, 0, gb.nEstimators)
	for stage := 0; stage < gb.nEstimators; stage++ {
		// 二乗損失の負の勾配は残差そのもの
		for i := range residual {
			residual[i] = target[i] - current[i]
		}
		samples := all
		if nSub < n {
			samples = rng.Perm(n)[:nSub]
		}

		dt := tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(gb.maxDepth),
			tree.WithMinSamplesSplit(gb.minSamplesSplit),
			tree.WithMinSamplesLeaf(gb.minSamplesLeaf),
		)
		if err := dt.FitSamples(X, residual, samples); err != nil {
			return errors.Wrapf(err, "boosting stage %d", stage)
		}
		parallel.ParallelizeWithThreshold(n, 1000, 0, func(start, end int) {
			for i := start; i < end; i++ {
				current[i] += gb.learningRate * dt.PredictRow(X, i)
			}
		})
		trees = append(trees, dt)
	}
	if err := errors.CheckNumericalStability("GradientBoostingRegressor.Fit", current); err != nil {
		return err
	}

	gb.trees = trees
	gb.state.SetDimensions(c, n)
	gb.state.SetFitted()
	return nil
}

// Predict sums the scaled stage predictions onto the initial estimate.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := gb.state.RequireFitted(GradientBoostingName, "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := gb.state.RequireFeatures("GradientBoostingRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		v := gb.init
		for _, dt := range gb.trees {
			v += gb.learningRate * dt.PredictRow(X, i)
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// Score returns R² on X, y.
func (gb *GradientBoostingRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := gb.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// NStages returns the number of fitted stages.
func (gb *GradientBoostingRegressor) NStages() int { return len(gb.trees) }

// GetParams implements model.Regressor.
func (gb *GradientBoostingRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      gb.nEstimators,
		"learning_rate":     gb.learningRate,
		"max_depth":         gb.maxDepth,
		"min_samples_split": gb.minSamplesSplit,
		"min_samples_leaf":  gb.minSamplesLeaf,
		"subsample":         gb.subsample,
		"random_state":      int(gb.randomState),
	}
}

// SetParams implements model.Regressor.
func (gb *GradientBoostingRegressor) SetParams(params map[string]interface{}) error {
	if err := model.CheckParamKeys(params, "n_estimators", "learning_rate", "max_depth",
		"min_samples_split", "min_samples_leaf", "subsample", "random_state"); err != nil {
		return err
	}
	seed := int(gb.randomState)
	if err := setInts(params, map[string]*int{
		"n_estimators":      &gb.nEstimators,
		"max_depth":         &gb.maxDepth,
		"min_samples_split": &gb.minSamplesSplit,
		"min_samples_leaf":  &gb.minSamplesLeaf,
		"random_state":      &seed,
	}); err != nil {
		return err
	}
	gb.randomState = uint64(seed)
	for key, dst := range map[string]*float64{
		"learning_rate": &gb.learningRate,
		"subsample":     &gb.subsample,
	} {
		v, ok, err := model.ParamFloat(params, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
	}
	return gb.validate()
}

// Clone implements model.Regressor.
func (gb *GradientBoostingRegressor) Clone() model.Regressor {
	c := *gb
	c.state = model.NewStateManager()
	c.trees = nil
	c.init = 0
	return &c
}

func (gb *GradientBoostingRegressor) String() string {
	return fmt.Sprintf("GradientBoostingRegressor(n_estimators=%d, learning_rate=%g, max_depth=%d)",
		gb.nEstimators, gb.learningRate, gb.maxDepth)
}

type boostingJSON struct {
	State        model.ModelState              `json:"state"`
	Init         float64                       `json:"init"`
	LearningRate float64                       `json:"learning_rate"`
	Trees        []*tree.DecisionTreeRegressor `json:"trees"`
}

// MarshalJSON implements json.Marshaler.
func (gb *GradientBoostingRegressor) MarshalJSON() ([]byte, error) {
	return json.Marshal(boostingJSON{
		State:        gb.state.GetState(),
		Init:         gb.init,
		LearningRate: gb.learningRate,
		Trees:        gb.trees,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The learning rate stored with
// the trees wins over the one in the hyperparameters.
func (gb *GradientBoostingRegressor) UnmarshalJSON(data []byte) error {
	var v boostingJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.State.Fitted && (len(v.Trees) == 0 || v.LearningRate <= 0) {
		return errors.NewValueError("GradientBoostingRegressor.UnmarshalJSON", "fitted model needs trees and a positive learning rate")
	}
	if gb.state == nil {
		gb.state = model.NewStateManager()
	}
	gb.state.SetState(v.State)
	gb.init = v.Init
	gb.trees = v.Trees
	if v.LearningRate > 0 {
		gb.learningRate = v.LearningRate
	}
	return nil
}
