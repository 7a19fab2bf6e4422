package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/linear"
	"github.com/YuminosukeSato/cropyield/metrics"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/preprocessing"
	"github.com/YuminosukeSato/cropyield/sklearn/tree"
)

func fitBundle(t *testing.T) (*Bundle, *mat.Dense) {
	t.Helper()
	f, err := dataset.NewFrame(
		dataset.CategoricalColumn("Area", []string{"India", "India", "Kenya", "Peru", "India", "Kenya"}, nil),
		dataset.CategoricalColumn("Item", []string{"Maize", "Rice", "Maize", "Rice", "Maize", "Rice"}, nil),
		dataset.NumericColumn("Year", []float64{1990, 1991, 1992, 1993, 1994, 1995}),
	)
	require.NoError(t, err)
	y := mat.NewDense(6, 1, []float64{10, 14, 11, 15, 12, 17})

	freq := preprocessing.NewFrequencyEncoder("Area")
	require.NoError(t, freq.Fit(f))
	encoded, err := freq.Transform(f)
	require.NoError(t, err)

	enc := preprocessing.NewColumnEncoder([]string{"Year"}, "Area", []string{"Item"})
	X, err := enc.FitTransform(encoded)
	require.NoError(t, err)

	reg := tree.NewDecisionTreeRegressor(tree.WithMaxDepth(3))
	require.NoError(t, reg.Fit(X, y))
	pred, err := reg.Predict(X)
	require.NoError(t, err)
	report, err := metrics.Report(y, pred)
	require.NoError(t, err)

	return &Bundle{
		FrequencyMap: freq,
		Encoder:      enc,
		Model:        reg,
		Metrics:      map[string]metrics.RegressionReport{PartitionTrain: report},
		CreatedAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}, X
}

func TestBundleRoundTrip(t *testing.T) {
	b, X := fitBundle(t)
	path := filepath.Join(t.TempDir(), "final_model", "model.json")
	require.NoError(t, b.Save(path))

	loaded, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, tree.Name, loaded.Model.Name())
	assert.Equal(t, b.CreatedAt, loaded.CreatedAt)
	assert.Equal(t, b.FrequencyMap.Counts, loaded.FrequencyMap.Counts)
	assert.Equal(t, b.Encoder.FeatureNames(), loaded.Encoder.FeatureNames())
	assert.InDelta(t, b.Metrics[PartitionTrain].R2, loaded.Metrics[PartitionTrain].R2, 1e-12)

	want, err := b.Model.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Model.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestBundleRejectsUnknownFormat(t *testing.T) {
	b, _ := fitBundle(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, b.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
	}{
		{"format version", strings.Replace(string(data), `"format_version": 1`, `"format_version": 2`, 1)},
		{"kind", strings.Replace(string(data), `"cropyield.bundle"`, `"cropyield.encoder"`, 1)},
		{"model type", strings.Replace(string(data), `"`+tree.Name+`"`, `"XGBRegressor"`, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0o644))
			_, err := LoadBundle(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat), "got %v", err)
		})
	}
}

func TestBundleRequiresComponents(t *testing.T) {
	b, _ := fitBundle(t)
	b.Model = nil
	err := b.Save(filepath.Join(t.TempDir(), "model.json"))
	assert.Error(t, err)
}

func TestModelEnvelope(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{3, 5, 7, 9})
	reg := linear.NewLinearRegression()
	require.NoError(t, reg.Fit(X, y))

	path := filepath.Join(t.TempDir(), "model_only.json")
	require.NoError(t, SaveModel(path, reg))
	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, linear.Name, loaded.Name())

	pred, err := loaded.Predict(mat.NewDense(1, 1, []float64{10}))
	require.NoError(t, err)
	assert.InDelta(t, 21.0, pred.At(0, 0), 1e-9)

	_, err = LoadBundle(path)
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))
}
