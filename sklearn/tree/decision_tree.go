// Package tree implements CART regression trees. The trees minimize the
// squared error of each split and are also the base learners of the
// ensemble package.
package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Name is the registry name of DecisionTreeRegressor.
const Name = "DecisionTreeRegressor"

func init() {
	model.RegisterRegressor(Name, func() model.Regressor { return NewDecisionTreeRegressor() })
}

// leaf marks a node without children.
const leaf = -1

// Node is one node of a fitted tree. Samples with X[Feature] <= Threshold go
// to Left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value"`
	NSamples  int     `json:"n_samples"`
}

// DecisionTreeRegressor is a CART regression tree.
type DecisionTreeRegressor struct {
	state *model.StateManager

	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     float64
	randomState     uint64

	nodes       []Node
	importances []float64
	depth       int
}

// NewDecisionTreeRegressor creates an unfitted tree. Defaults match
// scikit-learn: unlimited depth, min_samples_split=2, min_samples_leaf=1.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		state:           model.NewStateManager(),
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Name implements model.Regressor.
func (dt *DecisionTreeRegressor) Name() string { return Name }

// IsFitted reports whether the tree has been fitted.
func (dt *DecisionTreeRegressor) IsFitted() bool { return dt.state.IsFitted() }

// Fit grows the tree on every row of X.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	r, _ := X.Dims()
	target, err := checkXY("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	samples := make([]int, r)
	for i := range samples {
		samples[i] = i
	}
	return dt.FitSamples(X, target, samples)
}

// FitSamples grows the tree on the given rows of X. Rows may repeat, which
// is how bootstrap samples are passed in.
func (dt *DecisionTreeRegressor) FitSamples(X mat.Matrix, y []float64, samples []int) error {
	_, c := X.Dims()
	if len(samples) == 0 || c == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if err := dt.validate(); err != nil {
		return err
	}

	b := &builder{
		dt:          dt,
		X:           X,
		y:           y,
		nFeatures:   c,
		importances: make([]float64, c),
		rng:         rand.New(rand.NewPCG(dt.randomState, dt.randomState)),
	}
	b.features = make([]int, c)
	for j := range b.features {
		b.features[j] = j
	}
	b.build(append([]int(nil), samples...), 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for j := range b.importances {
			b.importances[j] /= total
		}
	}

	dt.nodes = b.nodes
	dt.importances = b.importances
	dt.depth = b.maxDepth
	dt.state.SetDimensions(c, len(samples))
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeRegressor) validate() error {
	switch {
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	return nil
}

// checkXY validates shapes and returns y as a slice.
func checkXY(op string, X, y mat.Matrix) ([]float64, error) {
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

type builder struct {
	dt          *DecisionTreeRegressor
	X           mat.Matrix
	y           []float64
	nFeatures   int
	features    []int
	importances []float64
	rng         *rand.Rand
	nodes       []Node
	maxDepth    int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

func (b *builder) build(samples []int, depth int) int {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}
	sum, sumSq := 0.0, 0.0
	for _, i := range samples {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(samples))
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: leaf, Value: sum / n, NSamples: len(samples)})

	dt := b.dt
	if dt.maxDepth > 0 && depth >= dt.maxDepth {
		return id
	}
	if len(samples) < dt.minSamplesSplit || len(samples) < 2*dt.minSamplesLeaf {
		return id
	}
	sse := sumSq - sum*sum/n
	if sse <= 1e-12*math.Max(1, sumSq) {
		return id
	}

	best, ok := b.bestSplit(samples, sum)
	if !ok {
		return id
	}
	b.importances[best.feature] += best.gain

	left := b.build(best.left, depth+1)
	right := b.build(best.right, depth+1)
	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold
	b.nodes[id].Left = left
	b.nodes[id].Right = right
	return id
}

// candidates returns the features examined at one node.
func (b *builder) candidates() []int {
	frac := b.dt.maxFeatures
	if frac <= 0 || frac >= 1 {
		return b.features
	}
	k := int(math.Max(1, math.Floor(frac*float64(b.nFeatures))))
	perm := b.rng.Perm(b.nFeatures)[:k]
	sort.Ints(perm)
	return perm
}

// bestSplit maximizes the reduction in squared error. Ties keep the first
// feature examined.
func (b *builder) bestSplit(samples []int, sum float64) (split, bool) {
	n := len(samples)
	minLeaf := b.dt.minSamplesLeaf
	parentScore := sum * sum / float64(n)

	type pair struct{ x, y float64 }
	pairs := make([]pair, n)
	order := make([]int, n)

	var best split
	found := false
	for _, f := range b.candidates() {
		for k, i := range samples {
			order[k] = k
			pairs[k] = pair{x: b.X.At(i, f), y: b.y[i]}
		}
		sort.SliceStable(order, func(a, c int) bool { return pairs[order[a]].x < pairs[order[c]].x })

		leftSum := 0.0
		for k := 0; k < n-1; k++ {
			leftSum += pairs[order[k]].y
			nl := k + 1
			if nl < minLeaf || n-nl < minLeaf {
				continue
			}
			xl, xr := pairs[order[k]].x, pairs[order[k+1]].x
			if xl >= xr {
				continue
			}
			rightSum := sum - leftSum
			score := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(n-nl)
			gain := score - parentScore
			if gain > 1e-12 && (!found || gain > best.gain) {
				threshold := xl + (xr-xl)/2
				if threshold == xr {
					threshold = xl
				}
				best = split{feature: f, threshold: threshold, gain: gain}
				found = true
			}
		}
	}
	if !found {
		return best, false
	}

	best.left = make([]int, 0, n)
	best.right = make([]int, 0, n)
	for _, i := range samples {
		if b.X.At(i, best.feature) <= best.threshold {
			best.left = append(best.left, i)
		} else {
			best.right = append(best.right, i)
		}
	}
	return best, true
}

// Predict returns the leaf mean for every row of X.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted(Name, "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, dt.PredictRow(X, i))
	}
	return out, nil
}

// PredictRow returns the prediction for row i of X without validation.
func (dt *DecisionTreeRegressor) PredictRow(X mat.Matrix, i int) float64 {
	n := &dt.nodes[0]
	for n.Feature != leaf {
		if X.At(i, n.Feature) <= n.Threshold {
			n = &dt.nodes[n.Left]
		} else {
			n = &dt.nodes[n.Right]
		}
	}
	return n.Value
}

// Score returns R² on X, y.
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, pred)
}

// GetDepth returns the depth of the deepest leaf. The root has depth 0.
func (dt *DecisionTreeRegressor) GetDepth() int { return dt.depth }

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	n := 0
	for _, node := range dt.nodes {
		if node.Feature == leaf {
			n++
		}
	}
	return n
}

// GetFeatureImportances returns the normalized total squared-error
// reduction contributed by each feature.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.importances...)
}

// GetParams implements model.Regressor.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      int(dt.randomState),
	}
}

// SetParams implements model.Regressor.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	if err := model.CheckParamKeys(params, "max_depth", "min_samples_split", "min_samples_leaf", "max_features", "random_state"); err != nil {
		return err
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"max_depth", &dt.maxDepth},
		{"min_samples_split", &dt.minSamplesSplit},
		{"min_samples_leaf", &dt.minSamplesLeaf},
	}
	for _, p := range ints {
		v, ok, err := model.ParamInt(params, p.key)
		if err != nil {
			return err
		}
		if ok {
			*p.dst = v
		}
	}
	if v, ok, err := model.ParamFloat(params, "max_features"); err != nil {
		return err
	} else if ok {
		dt.maxFeatures = v
	}
	if v, ok, err := model.ParamInt(params, "random_state"); err != nil {
		return err
	} else if ok {
		dt.randomState = uint64(v)
	}
	return dt.validate()
}

// Clone implements model.Regressor.
func (dt *DecisionTreeRegressor) Clone() model.Regressor {
	return NewDecisionTreeRegressor(
		WithMaxDepth(dt.maxDepth),
		WithMinSamplesSplit(dt.minSamplesSplit),
		WithMinSamplesLeaf(dt.minSamplesLeaf),
		WithMaxFeatures(dt.maxFeatures),
		WithRandomState(dt.randomState),
	)
}

func (dt *DecisionTreeRegressor) String() string {
	return fmt.Sprintf("DecisionTreeRegressor(max_depth=%d, min_samples_split=%d, min_samples_leaf=%d)",
		dt.maxDepth, dt.minSamplesSplit, dt.minSamplesLeaf)
}

type treeJSON struct {
	State       model.ModelState `json:"state"`
	Nodes       []Node           `json:"nodes"`
	Importances []float64        `json:"feature_importances"`
	Depth       int              `json:"depth"`
}

// MarshalJSON implements json.Marshaler.
func (dt *DecisionTreeRegressor) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeJSON{
		State:       dt.state.GetState(),
		Nodes:       dt.nodes,
		Importances: dt.importances,
		Depth:       dt.depth,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (dt *DecisionTreeRegressor) UnmarshalJSON(data []byte) error {
	var v treeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.State.Fitted {
		if len(v.Nodes) == 0 {
			return errors.NewValueError("DecisionTreeRegressor.UnmarshalJSON", "fitted tree has no nodes")
		}
		for k, n := range v.Nodes {
			if n.Feature == leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= v.State.NFeatures ||
				n.Left <= k || n.Right <= k || n.Left >= len(v.Nodes) || n.Right >= len(v.Nodes) {
				return errors.NewValueError("DecisionTreeRegressor.UnmarshalJSON", fmt.Sprintf("node %d is malformed", k))
			}
		}
	}
	if dt.state == nil {
		dt.state = model.NewStateManager()
	}
	dt.state.SetState(v.State)
	dt.nodes = v.Nodes
	dt.importances = v.Importances
	dt.depth = v.Depth
	return nil
}
