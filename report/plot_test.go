package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

func TestPredictionPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trained_model", "prediction_vs_actual.png")
	actual := []float64{10, 20, 30, 40}
	predicted := []float64{11, 19, 33, 38}

	if err := PredictionPlot(path, "RandomForestRegressor", actual, predicted); err != nil {
		t.Fatalf("PredictionPlot() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read plot: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("plot is not a PNG file")
	}
}

func TestPredictionPlotErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name      string
		actual    []float64
		predicted []float64
		target    error
	}{
		{"length mismatch", []float64{1, 2}, []float64{1}, nil},
		{"empty", nil, nil, errors.ErrEmptyData},
		{"non-finite", []float64{1, 2}, []float64{1, math.Inf(1)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PredictionPlot(filepath.Join(dir, tt.name+".png"), "", tt.actual, tt.predicted)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
		})
	}
}
