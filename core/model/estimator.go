// Package model defines the estimator contracts shared by every regressor
// and transformer, plus their fitted-state bookkeeping and persistence.
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う (n x 1)
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer is implemented by models that report R² on labelled data.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// Regressor is the contract the model selector works against. Clone
// returns an unfitted copy carrying the same hyperparameters, which lets
// grid-search workers fit independent instances.
type Regressor interface {
	Fitter
	Predictor
	Scorer

	// Name is the registry type name, e.g. "RandomForestRegressor".
	Name() string

	// GetParams returns the hyperparameters.
	GetParams() map[string]interface{}

	// SetParams updates hyperparameters. Unknown keys are an error.
	SetParams(params map[string]interface{}) error

	Clone() Regressor
}
