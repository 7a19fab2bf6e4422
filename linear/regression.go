// Package linear provides ordinary least squares regression.
package linear

import (
	"encoding/json"
	"fmt"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/core/parallel"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Name is the registry name of LinearRegression.
const Name = "LinearRegression"

func init() {
	model.RegisterRegressor(Name, func() model.Regressor { return NewLinearRegression() })
}

const machineEpsilon = 0x1p-52

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は線形回帰モデル
//
// 最小二乗解は特異値分解で求める。ランク落ちした計画行列（例えば切片と
// 全カテゴリのone-hot列を同時に含む場合）でも最小ノルム解を返す。
type LinearRegression struct {
	state *model.StateManager

	fitIntercept bool
	rcond        float64
	nJobs        int

	Weights   *mat.VecDense // 重み（係数）
	Intercept float64       // 切片
	Rank      int           // 計画行列の数値ランク
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		state:        model.NewStateManager(),
		fitIntercept: true,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Name implements model.Regressor.
func (lr *LinearRegression) Name() string { return Name }

// IsFitted は学習済みかどうかを返す
func (lr *LinearRegression) IsFitted() bool { return lr.state.IsFitted() }

// Fit はモデルを訓練データで学習させる
// 切片ありの場合はXとyを中心化してから解き、切片を平均から復元する
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	xMean := make([]float64, c)
	yMean := 0.0
	if lr.fitIntercept {
		for i := 0; i < r; i++ {
			yMean += y.At(i, 0)
			for j := 0; j < c; j++ {
				xMean[j] += X.At(i, j)
			}
		}
		yMean /= float64(r)
		for j := range xMean {
			xMean[j] /= float64(r)
		}
	}

	Xc := mat.NewDense(r, c, nil)
	yc := mat.NewDense(r, 1, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, lr.nJobs, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.Set(i, 0, y.At(i, 0)-yMean)
		}
	})

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "SVD did not converge", errors.ErrSingularMatrix)
	}
	rcond := lr.rcond
	if rcond <= 0 {
		rcond = machineEpsilon * float64(max(r, c))
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return errors.NewModelError("LinearRegression.Fit", "design matrix has rank 0", errors.ErrSingularMatrix)
	}

	var w mat.Dense
	svd.SolveTo(&w, yc, rank)

	weights := mat.NewVecDense(c, nil)
	intercept := yMean
	for j := 0; j < c; j++ {
		weights.SetVec(j, w.At(j, 0))
		intercept -= xMean[j] * w.At(j, 0)
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", weights.RawVector().Data); err != nil {
		return err
	}

	lr.Weights = weights
	lr.Intercept = intercept
	lr.Rank = rank
	lr.state.SetDimensions(c, r)
	lr.state.SetFitted()
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted(Name, "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.state.RequireFeatures("LinearRegression.Predict", c); err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	var pred mat.VecDense
	pred.MulVec(X, lr.Weights)
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, pred.AtVec(i)+lr.Intercept)
	}
	return out, nil
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.R2Matrix(y, yPred)
}

// GetWeights は学習された重み（係数）を返す
func (lr *LinearRegression) GetWeights() []float64 {
	if lr.Weights == nil {
		return nil
	}
	return append([]float64(nil), lr.Weights.RawVector().Data...)
}

// GetIntercept は学習された切片を返す
func (lr *LinearRegression) GetIntercept() float64 {
	return lr.Intercept
}

// GetParams implements model.Regressor.
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.fitIntercept,
	}
}

// SetParams implements model.Regressor.
func (lr *LinearRegression) SetParams(params map[string]interface{}) error {
	if err := model.CheckParamKeys(params, "fit_intercept"); err != nil {
		return err
	}
	if v, ok, err := model.ParamBool(params, "fit_intercept"); err != nil {
		return err
	} else if ok {
		lr.fitIntercept = v
	}
	return nil
}

// Clone implements model.Regressor.
func (lr *LinearRegression) Clone() model.Regressor {
	return NewLinearRegression(
		WithFitIntercept(lr.fitIntercept),
		WithRCond(lr.rcond),
		WithNJobs(lr.nJobs),
	)
}

// String はモデルの文字列表現を返す
func (lr *LinearRegression) String() string {
	return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.fitIntercept)
}

type linearJSON struct {
	State     model.ModelState `json:"state"`
	Weights   []float64        `json:"coef"`
	Intercept float64          `json:"intercept"`
	Rank      int              `json:"rank"`
}

// MarshalJSON implements json.Marshaler.
func (lr *LinearRegression) MarshalJSON() ([]byte, error) {
	return json.Marshal(linearJSON{
		State:     lr.state.GetState(),
		Weights:   lr.GetWeights(),
		Intercept: lr.Intercept,
		Rank:      lr.Rank,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (lr *LinearRegression) UnmarshalJSON(data []byte) error {
	var v linearJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v.Weights) != v.State.NFeatures {
		return errors.NewDimensionError("LinearRegression.UnmarshalJSON", v.State.NFeatures, len(v.Weights), 1)
	}
	if lr.state == nil {
		lr.state = model.NewStateManager()
	}
	lr.state.SetState(v.State)
	if len(v.Weights) > 0 {
		lr.Weights = mat.NewVecDense(len(v.Weights), v.Weights)
	}
	lr.Intercept = v.Intercept
	lr.Rank = v.Rank
	return nil
}
