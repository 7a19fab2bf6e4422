package trainer

import (
	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/linear"
	"github.com/YuminosukeSato/cropyield/sklearn/ensemble"
	"github.com/YuminosukeSato/cropyield/sklearn/model_selection"
	"github.com/YuminosukeSato/cropyield/sklearn/tree"
)

// Candidate is one model family in the selection. An empty Grid means the
// estimator is fitted as is, without cross-validation.
type Candidate struct {
	Name      string
	Estimator model.Regressor
	Grid      model_selection.ParamGrid
}

// DefaultCandidates returns the model families in selection order. Ties in
// validation score go to the earlier candidate.
func DefaultCandidates(seed uint64) []Candidate {
	return []Candidate{
		{
			Name:      "LinearRegression",
			Estimator: linear.NewLinearRegression(),
		},
		{
			Name:      "DecisionTree",
			Estimator: tree.NewDecisionTreeRegressor(tree.WithRandomState(seed)),
			Grid: model_selection.ParamGrid{
				"max_depth":         {5, 10, 15},
				"min_samples_split": {2, 5, 10},
			},
		},
		{
			Name: "RandomForest",
			// grid search already runs folds in parallel
			Estimator: ensemble.NewRandomForestRegressor(
				ensemble.WithForestRandomState(seed),
				ensemble.WithNJobs(1),
			),
			Grid: model_selection.ParamGrid{
				"n_estimators": {50, 100},
				"max_depth":    {10, 20},
			},
		},
		{
			Name:      "GradientBoosting",
			Estimator: ensemble.NewGradientBoostingRegressor(ensemble.WithBoostingRandomState(seed)),
			Grid: model_selection.ParamGrid{
				"n_estimators":  {100, 200},
				"learning_rate": {0.03, 0.1},
				"max_depth":     {3, 6},
			},
		},
	}
}
