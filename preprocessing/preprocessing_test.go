package preprocessing

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	s := NewStandardScalerDefault()
	var nf *errors.NotFittedError
	if _, err := s.Transform(X); !errors.As(err, &nf) {
		t.Fatalf("Transform before Fit: got %v, want NotFittedError", err)
	}

	out, err := s.FitTransform(X)
	if err != nil {
		t.Fatalf("FitTransform() error = %v", err)
	}

	// population std of 1..4 is sqrt(1.25)
	if math.Abs(s.Mean[0]-2.5) > 1e-12 || math.Abs(s.Scale[0]-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("column 0 mean/scale = %v/%v", s.Mean[0], s.Scale[0])
	}
	// zero-variance column keeps scale 1
	if s.Scale[1] != 1 {
		t.Errorf("constant column scale = %v, want 1", s.Scale[1])
	}
	if out.At(0, 1) != 0 {
		t.Errorf("constant column should transform to 0, got %v", out.At(0, 1))
	}

	back, err := s.InverseTransform(out)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(back, X, 1e-12) {
		t.Errorf("InverseTransform did not restore the input")
	}

	if _, err := s.Transform(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected dimension error for 3 columns")
	}
}

func TestStandardScalerJSON(t *testing.T) {
	s := NewStandardScalerDefault()
	if err := s.Fit(mat.NewDense(3, 1, []float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	restored := &StandardScaler{}
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatal(err)
	}
	got, err := restored.Transform(mat.NewDense(1, 1, []float64{2}))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got.At(0, 0)) > 1e-12 {
		t.Errorf("restored scaler maps the mean to %v", got.At(0, 0))
	}

	if err := json.Unmarshal([]byte(`{"state":{"fitted":true,"n_features":1},"mean":[0],"scale":[0]}`), &StandardScaler{}); err == nil {
		t.Error("zero scale should be rejected")
	}
}

func cropFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	f, err := dataset.NewFrame(
		dataset.CategoricalColumn("Area", []string{"India", "India", "Kenya", "Peru", "India"}, nil),
		dataset.CategoricalColumn("Crop", []string{"Wheat", "Maize", "Wheat", "Rice", "Maize"}, nil),
		dataset.NumericColumn("Year", []float64{1990, 1991, 1992, 1993, 1994}),
		dataset.NumericColumn("avg_temp", []float64{20, 22, 24, 26, 28}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestOneHotEncoder(t *testing.T) {
	f := cropFrame(t)
	e := NewOneHotEncoder()
	if err := e.Fit(f, "Crop"); err != nil {
		t.Fatal(err)
	}
	if got := e.FeatureNames(); len(got) != 3 || got[0] != "Crop_Maize" || got[2] != "Crop_Wheat" {
		t.Fatalf("FeatureNames() = %v", got)
	}

	unseen, _ := dataset.NewFrame(
		dataset.CategoricalColumn("Crop", []string{"Rice", "Cassava", ""}, []bool{false, false, true}),
	)
	out, err := e.Transform(unseen)
	if err != nil {
		t.Fatal(err)
	}
	want := mat.NewDense(3, 3, []float64{
		0, 1, 0,
		0, 0, 0,
		0, 0, 0,
	})
	if !mat.Equal(out, want) {
		t.Errorf("Transform() =\n%v\nwant\n%v", mat.Formatted(out), mat.Formatted(want))
	}
}

func TestFrequencyEncoder(t *testing.T) {
	f := cropFrame(t)
	e := NewFrequencyEncoder("Area")
	if err := e.Fit(f); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		area string
		want float64
	}{
		{"India", 3},
		{"Kenya", 1},
		{"Peru", 1},
		{"Atlantis", 5.0 / 3.0},
	}
	for _, tt := range tests {
		if got := e.Lookup(tt.area); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Lookup(%q) = %v, want %v", tt.area, got, tt.want)
		}
	}

	encoded, err := e.Transform(f)
	if err != nil {
		t.Fatal(err)
	}
	if encoded.Has("Area") || !encoded.Has("Area_freq") {
		t.Fatalf("Transform() columns = %v", encoded.Names())
	}
	vals, _ := encoded.Numeric("Area_freq")
	if vals[0] != 3 || vals[2] != 1 {
		t.Errorf("Area_freq = %v", vals)
	}

	path := filepath.Join(t.TempDir(), "area_freq_map.json")
	if err := e.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadFrequencyEncoder(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Lookup("India") != 3 || loaded.Fallback != e.Fallback {
		t.Errorf("loaded encoder differs: %+v", loaded)
	}
}

func TestColumnEncoder(t *testing.T) {
	f := cropFrame(t)
	freq := NewFrequencyEncoder("Area")
	if err := freq.Fit(f); err != nil {
		t.Fatal(err)
	}
	encodedFrame, err := freq.Transform(f)
	if err != nil {
		t.Fatal(err)
	}

	e := NewColumnEncoder([]string{"Year", "avg_temp"}, "Area", []string{"Crop"})
	X, err := e.FitTransform(encodedFrame)
	if err != nil {
		t.Fatal(err)
	}

	r, c := X.Dims()
	if r != 5 || c != 6 {
		t.Fatalf("Dims() = %d×%d, want 5×6", r, c)
	}
	names := e.FeatureNames()
	wantNames := []string{"Year", "avg_temp", "Area_freq", "Crop_Maize", "Crop_Rice", "Crop_Wheat"}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("FeatureNames()[%d] = %q, want %q", i, names[i], wantNames[i])
		}
	}
	// scaled columns have zero mean
	for j := 0; j < 3; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += X.At(i, j)
		}
		if math.Abs(sum) > 1e-9 {
			t.Errorf("column %d mean = %v, want 0", j, sum/float64(r))
		}
	}
	if X.At(0, 5) != 1 || X.At(1, 3) != 1 {
		t.Errorf("one-hot block wrong: %v", mat.Formatted(X))
	}

	path := filepath.Join(t.TempDir(), "preprocessing.json")
	if err := e.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadColumnEncoder(path)
	if err != nil {
		t.Fatal(err)
	}
	X2, err := loaded.Transform(encodedFrame)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(X, X2, 1e-12) {
		t.Error("loaded encoder produced a different matrix")
	}
}

func TestColumnEncoderTypeMismatch(t *testing.T) {
	f, _ := dataset.NewFrame(
		dataset.CategoricalColumn("Year", []string{"nineteen", "twenty"}, nil),
		dataset.NumericColumn("Area_freq", []float64{1, 2}),
		dataset.CategoricalColumn("Crop", []string{"Wheat", "Rice"}, nil),
	)
	e := NewColumnEncoder([]string{"Year"}, "Area", []string{"Crop"})
	err := e.Fit(f)
	var ve *errors.ValueError
	if !errors.As(err, &ve) {
		t.Fatalf("Fit() error = %v, want ValueError", err)
	}

	if _, err := NewColumnEncoder([]string{"Year"}, "Area", nil).Transform(f); err == nil {
		t.Error("Transform before Fit should fail")
	}
}
