// Package metrics は回帰モデルの評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.IsEmpty() {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.IsEmpty() || yPred.Len() != n {
		got := 0
		if !yPred.IsEmpty() {
			got = yPred.Len()
		}
		return 0, errors.NewDimensionError(op, n, got, 0)
	}
	return n, nil
}

// MSE は平均二乗誤差（Mean Squared Error）を計算する
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE は平方根平均二乗誤差（Root Mean Squared Error）を計算する
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE は平均絶対誤差（Mean Absolute Error）を計算する
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score は決定係数（R²）を計算する
//
// When yTrue has no variance the score is 1 for a perfect prediction and 0
// otherwise, so that cross-validation folds with a constant target still
// produce a finite score.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	yMean := stat.Mean(mat.Col(nil, 0, yTrue), nil)

	// 全変動（TSS）と残差変動（RSS）
	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}

	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// ToVec converts an n×1 matrix into a vector.
func ToVec(m mat.Matrix) (*mat.VecDense, error) {
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError("ToVec", "empty matrix")
	}
	if c != 1 {
		return nil, errors.NewValueError("ToVec", "must be a column vector (n×1 matrix)")
	}
	return mat.NewVecDense(r, mat.Col(nil, 0, m)), nil
}

// RegressionReport bundles the metrics reported for a fitted model on one
// partition.
type RegressionReport struct {
	R2   float64 `json:"r2" yaml:"r2"`
	RMSE float64 `json:"rmse" yaml:"rmse"`
	MAE  float64 `json:"mae" yaml:"mae"`
}

// Report computes R², RMSE and MAE for n×1 matrices.
func Report(yTrue, yPred mat.Matrix) (RegressionReport, error) {
	t, err := ToVec(yTrue)
	if err != nil {
		return RegressionReport{}, err
	}
	p, err := ToVec(yPred)
	if err != nil {
		return RegressionReport{}, err
	}
	r2, err := R2Score(t, p)
	if err != nil {
		return RegressionReport{}, err
	}
	rmse, err := RMSE(t, p)
	if err != nil {
		return RegressionReport{}, err
	}
	mae, err := MAE(t, p)
	if err != nil {
		return RegressionReport{}, err
	}
	return RegressionReport{R2: r2, RMSE: rmse, MAE: mae}, nil
}

// R2Matrix is R2Score for n×1 matrices, the form estimators return.
func R2Matrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := ToVec(yTrue)
	if err != nil {
		return 0, err
	}
	p, err := ToVec(yPred)
	if err != nil {
		return 0, err
	}
	return R2Score(t, p)
}
