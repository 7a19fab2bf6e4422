package linear

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// createOneHotData は数値列と1つのカテゴリ列（全カテゴリone-hot）からなる
// データを生成する。切片列と合わせると計画行列はランク落ちする。
func createOneHotData(rows, numeric, categories int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(7, 7))
	cols := numeric + categories
	X := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		v := 3.0
		for j := 0; j < numeric; j++ {
			x := rng.Float64()*2 - 1
			X.Set(i, j, x)
			v += float64(j+1) * x
		}
		c := i % categories
		X.Set(i, numeric+c, 1)
		v += float64(c)
		y.Set(i, 0, v)
	}
	return X, y
}

func TestLinearRegression(t *testing.T) {
	tests := []struct {
		name          string
		X             *mat.Dense
		y             *mat.Dense
		opts          []Option
		wantWeights   []float64
		wantIntercept float64
	}{
		{
			name:          "y = 2x + 1",
			X:             mat.NewDense(4, 1, []float64{1, 2, 3, 4}),
			y:             mat.NewDense(4, 1, []float64{3, 5, 7, 9}),
			wantWeights:   []float64{2},
			wantIntercept: 1,
		},
		{
			name:          "y = x1 + 2*x2 + 3",
			X:             mat.NewDense(5, 2, []float64{1, 1, 2, 1, 1, 2, 3, 5, 0, 4}),
			y:             mat.NewDense(5, 1, []float64{6, 7, 8, 16, 11}),
			wantWeights:   []float64{1, 2},
			wantIntercept: 3,
		},
		{
			name:          "no intercept",
			X:             mat.NewDense(4, 1, []float64{1, 2, 3, 4}),
			y:             mat.NewDense(4, 1, []float64{2, 4, 6, 8}),
			opts:          []Option{WithFitIntercept(false)},
			wantWeights:   []float64{2},
			wantIntercept: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr := NewLinearRegression(tt.opts...)
			if err := lr.Fit(tt.X, tt.y); err != nil {
				t.Fatalf("Fit() error = %v", err)
			}
			for j, w := range lr.GetWeights() {
				if math.Abs(w-tt.wantWeights[j]) > 1e-9 {
					t.Errorf("weight[%d] = %v, want %v", j, w, tt.wantWeights[j])
				}
			}
			if math.Abs(lr.GetIntercept()-tt.wantIntercept) > 1e-9 {
				t.Errorf("intercept = %v, want %v", lr.GetIntercept(), tt.wantIntercept)
			}
			score, err := lr.Score(tt.X, tt.y)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(score-1) > 1e-9 {
				t.Errorf("Score() = %v, want 1", score)
			}
		})
	}
}

func TestLinearRegressionRankDeficient(t *testing.T) {
	X, y := createOneHotData(200, 3, 4)
	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if lr.Rank != 6 {
		t.Errorf("Rank = %d, want 6", lr.Rank)
	}
	pred, err := lr.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 200; i++ {
		if math.Abs(pred.At(i, 0)-y.At(i, 0)) > 1e-8 {
			t.Fatalf("row %d: predicted %v, want %v", i, pred.At(i, 0), y.At(i, 0))
		}
	}
}

func TestLinearRegressionErrors(t *testing.T) {
	lr := NewLinearRegression()

	var nf *errors.NotFittedError
	if _, err := lr.Predict(mat.NewDense(1, 1, nil)); !errors.As(err, &nf) {
		t.Errorf("Predict before Fit: got %v", err)
	}

	var de *errors.DimensionError
	if err := lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(2, 1, []float64{1, 2})); !errors.As(err, &de) {
		t.Errorf("row mismatch: got %v", err)
	}

	if err := lr.Fit(mat.NewDense(3, 1, []float64{1, 2, 3}), mat.NewDense(3, 1, []float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	if _, err := lr.Predict(mat.NewDense(1, 2, nil)); !errors.As(err, &de) {
		t.Errorf("feature mismatch: got %v", err)
	}

	if err := lr.SetParams(map[string]interface{}{"alpha": 1.0}); err == nil {
		t.Error("SetParams should reject unknown keys")
	}
}

func TestLinearRegressionRegistry(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})
	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	spec, err := model.EncodeRegressor(lr)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatal(err)
	}
	var decoded model.ModelSpec
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	restored, err := model.DecodeRegressor(decoded)
	if err != nil {
		t.Fatalf("DecodeRegressor() error = %v", err)
	}
	pred, err := restored.Predict(mat.NewDense(1, 1, []float64{10}))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pred.At(0, 0)-21) > 1e-9 {
		t.Errorf("restored prediction = %v, want 21", pred.At(0, 0))
	}

	clone := lr.Clone()
	if _, err := clone.Predict(X); err == nil {
		t.Error("Clone should return an unfitted model")
	}
}
