package model_selection

import (
	"context"
	"math"
	"time"

	"github.com/YuminosukeSato/cropyield/core/model"
	"github.com/YuminosukeSato/cropyield/core/parallel"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CandidateResult is the cross-validated score of one parameter set.
// A fold whose fit failed scores NaN and makes the mean NaN.
type CandidateResult struct {
	Params     map[string]interface{} `json:"params"`
	FoldScores []float64              `json:"fold_scores"`
	MeanScore  float64                `json:"mean_score"`
	StdScore   float64                `json:"std_score"`
	Err        error                  `json:"-"`
}

// GridSearchCV evaluates every parameter set of Grid by k-fold R² and
// refits the estimator with the best set on all data.
type GridSearchCV struct {
	Estimator model.Regressor
	Grid      ParamGrid
	CV        *KFold
	NJobs     int
	Logger    log.Logger

	Results       []CandidateResult
	BestIndex     int
	BestParams    map[string]interface{}
	BestScore     float64
	BestEstimator model.Regressor
}

// NewGridSearchCV returns a search with unshuffled k-fold splitting.
func NewGridSearchCV(estimator model.Regressor, grid ParamGrid, folds int) *GridSearchCV {
	return &GridSearchCV{
		Estimator: estimator,
		Grid:      grid,
		CV:        NewKFold(folds, false, 0),
		Logger:    log.NewNopLogger(),
	}
}

// Fit runs the search. Fold fits run concurrently on clones of Estimator,
// at most NJobs at a time. A failing fold does not stop the search; Fit
// fails only when no parameter set scored on every fold.
func (g *GridSearchCV) Fit(ctx context.Context, X, y *mat.Dense) error {
	n, _ := X.Dims()
	folds, err := g.CV.Split(n)
	if err != nil {
		return err
	}
	combos := g.Grid.Combinations()
	logger := g.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	foldData := make([]foldMatrices, len(folds))
	for k, f := range folds {
		foldData[k] = foldMatrices{
			XTrain: takeRows(X, f.TrainIndices),
			yTrain: takeRows(y, f.TrainIndices),
			XTest:  takeRows(X, f.TestIndices),
			yTest:  takeRows(y, f.TestIndices),
		}
	}

	results := make([]CandidateResult, len(combos))
	for c, params := range combos {
		results[c] = CandidateResult{Params: params, FoldScores: make([]float64, len(folds))}
	}
	start := time.Now()

	nTasks := len(combos) * len(folds)
	taskErrs := make([]error, nTasks)
	err = parallel.ForEach(ctx, nTasks, g.NJobs, func(ctx context.Context, task int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, k := task/len(folds), task%len(folds)
		score, fitErr := g.scoreFold(combos[c], foldData[k])
		if fitErr != nil {
			// 失敗した分割はNaNとして記録し、探索は継続する
			results[c].FoldScores[k] = math.NaN()
			taskErrs[task] = fitErr
			return nil
		}
		results[c].FoldScores[k] = score
		return nil
	})
	if err != nil {
		return err
	}

	best := -1
	for c := range results {
		r := &results[c]
		for k := range folds {
			if e := taskErrs[c*len(folds)+k]; e != nil && r.Err == nil {
				r.Err = e
			}
		}
		r.MeanScore, r.StdScore = stat.PopMeanStdDev(r.FoldScores, nil)
		logger.Debug("grid point scored",
			log.ModelNameKey, g.Estimator.Name(),
			log.HyperParamsKey, r.Params,
			log.CVScoreKey, r.MeanScore,
		)
		if math.IsNaN(r.MeanScore) {
			continue
		}
		if best < 0 || r.MeanScore > results[best].MeanScore {
			best = c
		}
	}
	g.Results = results
	if best < 0 {
		cause := results[0].Err
		if cause == nil {
			cause = errors.ErrNoCandidate
		}
		return errors.Wrapf(cause, "%s: every parameter set failed", g.Estimator.Name())
	}

	refit := g.Estimator.Clone()
	if err := refit.SetParams(results[best].Params); err != nil {
		return err
	}
	if err := refit.Fit(X, y); err != nil {
		return errors.Wrapf(err, "refit %s", g.Estimator.Name())
	}

	g.BestIndex = best
	g.BestParams = results[best].Params
	g.BestScore = results[best].MeanScore
	g.BestEstimator = refit
	logger.Info("grid search finished",
		log.ModelNameKey, g.Estimator.Name(),
		log.HyperParamsKey, g.BestParams,
		log.CVScoreKey, g.BestScore,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

type foldMatrices struct {
	XTrain, yTrain, XTest, yTest *mat.Dense
}

func (g *GridSearchCV) scoreFold(params map[string]interface{}, f foldMatrices) (score float64, err error) {
	err = errors.SafeExecute("GridSearchCV."+g.Estimator.Name(), func() error {
		est := g.Estimator.Clone()
		if err := est.SetParams(params); err != nil {
			return err
		}
		if err := est.Fit(f.XTrain, f.yTrain); err != nil {
			return err
		}
		s, err := est.Score(f.XTest, f.yTest)
		if err != nil {
			return err
		}
		score = s
		return nil
	})
	return score, err
}

// takeRows copies the given rows of m into a new matrix.
func takeRows(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		copy(out.RawRowView(i), m.RawRowView(r))
	}
	return out
}
