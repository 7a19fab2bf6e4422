// Package preprocessing turns cleaned frames into the numeric design
// matrices the regressors are trained on: standardization, one-hot and
// frequency encoding, and the ColumnEncoder that composes them.
package preprocessing

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minScale 未満の標準偏差はゼロ分散とみなし、スケール1を使う
const minScale = 1e-8

// StandardScaler はscikit-learn互換の標準化スケーラー
// データを平均0、標準偏差1に変換する（母標準偏差を使用）
type StandardScaler struct {
	state *model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差
	Scale []float64

	// WithMean は平均を引くかどうか (デフォルト: true)
	WithMean bool

	// WithStd は標準偏差で割るかどうか (デフォルト: true)
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		state:    model.NewStateManager(),
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// IsFitted は学習済みかどうかを返す
func (s *StandardScaler) IsFitted() bool {
	return s.state.IsFitted()
}

// Fit は訓練データから統計情報（平均、標準偏差）を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		if err := errors.CheckNumericalStability("StandardScaler.Fit", col); err != nil {
			return err
		}
		mean, std := stat.PopMeanStdDev(col, nil)

		s.Mean[j] = 0
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1
		// 標準偏差が0に近い場合は1のまま（ゼロ除算を避ける）
		if s.WithStd && std >= minScale {
			s.Scale[j] = std
		}
	}

	s.state.SetDimensions(c, r)
	s.state.SetFitted()
	return nil
}

// Transform は学習済みの統計情報を使ってデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler.Transform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.state.RequireFitted("StandardScaler", "InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.state.RequireFeatures("StandardScaler.InverseTransform", c); err != nil {
		return nil, err
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

// transformRow は1行をその場で標準化する（推論時の割り当てを避ける）
func (s *StandardScaler) transformRow(dst, src []float64) {
	for j, v := range src {
		dst[j] = (v - s.Mean[j]) / s.Scale[j]
	}
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	nFeatures, _ := s.state.GetDimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, nFeatures)
}

type scalerJSON struct {
	State    model.ModelState `json:"state"`
	WithMean bool             `json:"with_mean"`
	WithStd  bool             `json:"with_std"`
	Mean     []float64        `json:"mean"`
	Scale    []float64        `json:"scale"`
}

// MarshalJSON implements json.Marshaler.
func (s *StandardScaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(scalerJSON{
		State:    s.state.GetState(),
		WithMean: s.WithMean,
		WithStd:  s.WithStd,
		Mean:     s.Mean,
		Scale:    s.Scale,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StandardScaler) UnmarshalJSON(data []byte) error {
	var v scalerJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v.Mean) != len(v.Scale) || len(v.Mean) != v.State.NFeatures {
		return errors.NewValueError("StandardScaler.UnmarshalJSON", "mean and scale lengths disagree with n_features")
	}
	for j, sc := range v.Scale {
		if sc == 0 || math.IsNaN(sc) || math.IsInf(sc, 0) {
			return errors.NewValueError("StandardScaler.UnmarshalJSON", fmt.Sprintf("invalid scale at feature %d", j))
		}
	}
	if s.state == nil {
		s.state = model.NewStateManager()
	}
	s.state.SetState(v.State)
	s.WithMean, s.WithStd = v.WithMean, v.WithStd
	s.Mean, s.Scale = v.Mean, v.Scale
	return nil
}
