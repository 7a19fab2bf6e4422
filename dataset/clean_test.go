package dataset

import (
	"math"
	"testing"
)

func TestQuantile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		q      float64
		want   float64
	}{
		{name: "lower quartile", values: []float64{4, 1, 3, 2}, q: 0.25, want: 1.75},
		{name: "median even", values: []float64{4, 1, 3, 2}, q: 0.5, want: 2.5},
		{name: "upper quartile", values: []float64{4, 1, 3, 2}, q: 0.75, want: 3.25},
		{name: "median odd", values: []float64{5, 1, 3}, q: 0.5, want: 3},
		{name: "ignores NaN", values: []float64{math.NaN(), 10, 20}, q: 0.5, want: 15},
		{name: "single", values: []float64{7}, q: 0.9, want: 7},
		{name: "max", values: []float64{1, 2, 3}, q: 1, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quantile(tt.values, tt.q); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Quantile() = %v, want %v", got, tt.want)
			}
		})
	}

	if !math.IsNaN(Median([]float64{math.NaN()})) {
		t.Error("Median of no values should be NaN")
	}
}

func TestImputeMedian(t *testing.T) {
	nan := math.NaN()
	f, _ := NewFrame(
		NumericColumn("rain", []float64{1, nan, 3, 10}),
		NumericColumn("temp", []float64{nan, nan, 2, 4}),
	)

	out, medians, err := ImputeMedian(f, "rain", "temp")
	if err != nil {
		t.Fatalf("ImputeMedian() error = %v", err)
	}
	if medians["rain"] != 3 || medians["temp"] != 3 {
		t.Errorf("medians = %v", medians)
	}
	for _, name := range []string{"rain", "temp"} {
		c, _ := out.Column(name)
		if c.MissingCount() != 0 {
			t.Errorf("%s still has missing values", name)
		}
	}
	if c, _ := f.Column("rain"); c.MissingCount() != 1 {
		t.Error("ImputeMedian mutated its input")
	}

	empty, _ := NewFrame(NumericColumn("x", []float64{nan}))
	if _, _, err := ImputeMedian(empty, "x"); err == nil {
		t.Error("expected an error for an all-missing column")
	}
}

func TestFilterIQR(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 1000}
	f, _ := NewFrame(NumericColumn("y", values))

	out, b, err := FilterIQR(f, "y", 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 9 {
		t.Errorf("rows = %d, want 9 (outlier removed)", out.NumRows())
	}
	if b.Contains(1000) || !b.Contains(10) {
		t.Errorf("bounds = %+v", b)
	}
}

func TestFilterIQRIdempotentOnInBoundData(t *testing.T) {
	n := 200
	y := make([]float64, n)
	p := make([]float64, n)
	temp := make([]float64, n)
	for i := 0; i < n; i++ {
		y[i] = float64(i)
		p[i] = float64((i * 7) % n)
		temp[i] = 15 + float64(i%20)
	}
	f, _ := NewFrame(NumericColumn("y", y), NumericColumn("p", p), NumericColumn("t", temp))
	cols := []string{"y", "p", "t"}

	once, _, err := FilterIQRSequential(f, cols, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if once.NumRows() != n {
		t.Fatalf("first pass removed %d rows from in-bound data", n-once.NumRows())
	}
	twice, _, err := FilterIQRSequential(once, cols, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if twice.NumRows() != once.NumRows() {
		t.Errorf("second pass removed %d rows", once.NumRows()-twice.NumRows())
	}
}

func TestFilterIQRSequentialNarrows(t *testing.T) {
	// Row 9 is an outlier on "a" only. Once removed, "b" bounds are
	// computed on the surviving rows.
	a := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 500}
	b := []float64{5, 5, 5, 5, 5, 5, 5, 5, 6, 100}
	f, _ := NewFrame(NumericColumn("a", a), NumericColumn("b", b))

	out, bounds, err := FilterIQRSequential(f, []string{"a", "b"}, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	if out.NumRows() != 8 {
		t.Errorf("rows = %d, want 8", out.NumRows())
	}
	if bounds["b"].Upper != 5 {
		t.Errorf("b bounds = %+v, want computed after filtering a", bounds["b"])
	}
}
