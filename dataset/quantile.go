package dataset

import (
	"math"
	"sort"
)

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks (h = (n-1)q), ignoring NaN. It returns NaN when no
// value is present.
//
// gonum's stat.Quantile offers only the empirical and LinInterp kinds, and
// LinInterp uses h = nq. The cleaning thresholds need the (n-1)q rule.
func Quantile(values []float64, q float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * q
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// Median returns the 0.5 quantile, ignoring NaN.
func Median(values []float64) float64 {
	return Quantile(values, 0.5)
}
