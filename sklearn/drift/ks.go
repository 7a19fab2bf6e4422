// Package drift detects distribution shift between two samples with the
// two-sample Kolmogorov–Smirnov test.
package drift

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// DefaultThreshold is the significance level below which a column is
// reported as drifted.
const DefaultThreshold = 0.05

// KSResult is the outcome of one two-sample test.
type KSResult struct {
	Statistic float64
	PValue    float64
}

// KSTwoSample compares two numeric samples. NaN values are ignored. The
// statistic D is the largest distance between the empirical CDFs; the
// p-value uses the asymptotic Kolmogorov distribution with the effective
// sample size nm/(n+m).
func KSTwoSample(a, b []float64) (KSResult, error) {
	x, y := sortedFinite(a), sortedFinite(b)
	if len(x) == 0 || len(y) == 0 {
		return KSResult{}, errors.NewModelError("KSTwoSample", "empty sample", errors.ErrEmptyData)
	}
	d := stat.KolmogorovSmirnov(x, nil, y, nil)
	n, m := float64(len(x)), float64(len(y))
	return KSResult{Statistic: d, PValue: kolmogorovPValue(d, n*m/(n+m))}, nil
}

// KSCategorical compares two categorical samples by mapping every value to
// its rank within the sorted union of categories.
func KSCategorical(a, b []string) (KSResult, error) {
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	cats := make([]string, 0, len(seen))
	for v := range seen {
		cats = append(cats, v)
	}
	sort.Strings(cats)
	rank := make(map[string]float64, len(cats))
	for i, c := range cats {
		rank[c] = float64(i)
	}

	toRanks := func(vals []string) []float64 {
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = rank[v]
		}
		return out
	}
	return KSTwoSample(toRanks(a), toRanks(b))
}

func sortedFinite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// kolmogorovPValue returns P(D > d) for effective sample size en using
//
//	Q(λ) = 2 Σ_{k≥1} (-1)^(k-1) exp(-2k²λ²),  λ = (√en + 0.12 + 0.11/√en)·d
//
// gonum has no Kolmogorov distribution, so the series is summed here.
func kolmogorovPValue(d, en float64) float64 {
	if d <= 0 {
		return 1
	}
	sqrtEn := math.Sqrt(en)
	lambda := (sqrtEn + 0.12 + 0.11/sqrtEn) * d
	if lambda < 0.2 {
		// the series converges too slowly here and Q is 1 to double precision
		return 1
	}

	const (
		eps1 = 1e-6
		eps2 = 1e-16
	)
	a2 := -2 * lambda * lambda
	fac := 2.0
	sum, prev := 0.0, 0.0
	for k := 1; k <= 100; k++ {
		term := fac * math.Exp(a2*float64(k*k))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return clamp01(sum)
		}
		fac = -fac
		prev = math.Abs(term)
	}
	// no convergence: λ is tiny, the distributions are indistinguishable
	return 1
}

func clamp01(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
