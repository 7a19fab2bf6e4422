package dataset

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestNewFrame(t *testing.T) {
	tests := []struct {
		name    string
		cols    []*Column
		wantErr bool
	}{
		{
			name: "valid",
			cols: []*Column{
				NumericColumn("Year", []float64{1990, 1991}),
				CategoricalColumn("Area", []string{"India", "Kenya"}, nil),
			},
		},
		{
			name: "length mismatch",
			cols: []*Column{
				NumericColumn("Year", []float64{1990, 1991}),
				NumericColumn("avg_temp", []float64{20}),
			},
			wantErr: true,
		},
		{
			name: "duplicate name",
			cols: []*Column{
				NumericColumn("Year", []float64{1}),
				NumericColumn("Year", []float64{2}),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(tt.cols...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrameOperationsDoNotMutate(t *testing.T) {
	f, err := NewFrame(
		NumericColumn("x", []float64{1, 2, 3, 4}),
		CategoricalColumn("c", []string{"a", "b", "", "d"}, []bool{false, false, true, false}),
	)
	if err != nil {
		t.Fatal(err)
	}

	taken := f.Take([]int{3, 0})
	if taken.NumRows() != 2 {
		t.Fatalf("Take rows = %d", taken.NumRows())
	}
	x, _ := taken.Numeric("x")
	if !reflect.DeepEqual(x, []float64{4, 1}) {
		t.Errorf("Take x = %v", x)
	}

	dropped, err := f.DropMissing("c")
	if err != nil {
		t.Fatal(err)
	}
	if dropped.NumRows() != 3 {
		t.Errorf("DropMissing rows = %d, want 3", dropped.NumRows())
	}

	replaced, err := f.WithColumn(NumericColumn("x", []float64{9, 9, 9, 9}))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := replaced.Numeric("x"); v[0] != 9 {
		t.Errorf("WithColumn did not replace x")
	}
	if v, _ := f.Numeric("x"); v[0] != 1 {
		t.Errorf("WithColumn mutated the original frame")
	}

	if got := f.Drop("x", "missing").Names(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("Drop() names = %v", got)
	}
	if _, err := f.Select("c", "nope"); err == nil {
		t.Error("Select should fail on an unknown column")
	}
	if _, err := f.Numeric("c"); err == nil {
		t.Error("Numeric should fail on a categorical column")
	}
	if _, err := f.WithColumn(NumericColumn("y", []float64{1})); err == nil {
		t.Error("WithColumn should reject a column of another length")
	}
}

func TestFromRecords(t *testing.T) {
	records := []map[string]any{
		{"Area": "India", "Year": int32(1990), "avg_temp": "25.1", "hg/ha_yield": 36613},
		{"Area": "Kenya", "Year": int64(1991), "avg_temp": "na", "hg/ha_yield": nil},
		{"Area": "NA", "Year": 1992.0, "avg_temp": " 19 ", "hg/ha_yield": 40000.5, "Extra": true},
	}

	f, err := FromRecords(records, Options{
		MissingTokens: []string{"na"},
		ColumnOrder:   []string{"Area", "Year", "avg_temp", "hg/ha_yield"},
	})
	if err != nil {
		t.Fatalf("FromRecords() error = %v", err)
	}

	if got, want := f.Names(), []string{"Area", "Year", "avg_temp", "hg/ha_yield", "Extra"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	area, _ := f.Column("Area")
	if area.Kind != Categorical {
		t.Errorf("Area kind = %v", area.Kind)
	}
	if !area.IsMissing(2) {
		t.Error("the token match must be case-insensitive")
	}

	temp, _ := f.Numeric("avg_temp")
	if temp[0] != 25.1 || !math.IsNaN(temp[1]) || temp[2] != 19 {
		t.Errorf("avg_temp = %v", temp)
	}

	yield, _ := f.Column("hg/ha_yield")
	if yield.Kind != Numeric || yield.MissingCount() != 1 {
		t.Errorf("target column = %+v", yield)
	}

	extra, _ := f.Column("Extra")
	if !extra.IsMissing(0) || extra.Strs[2] != "true" {
		t.Errorf("absent keys should be missing, got %+v", extra)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	in := "Area,Year,avg_temp\nIndia,1990,25.5\n\"Cote d'Ivoire, Rep\",1991,\nKenya,1992,na\n"
	f, err := ReadCSV(strings.NewReader(in), Options{MissingTokens: []string{"na"}})
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if f.NumRows() != 3 || f.NumCols() != 3 {
		t.Fatalf("shape = %dx%d", f.NumRows(), f.NumCols())
	}
	temp, _ := f.Column("avg_temp")
	if temp.Kind != Numeric || temp.MissingCount() != 2 {
		t.Errorf("avg_temp = %+v", temp)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, f); err != nil {
		t.Fatal(err)
	}
	want := "Area,Year,avg_temp\nIndia,1990,25.5\n\"Cote d'Ivoire, Rep\",1991,\nKenya,1992,\n"
	if buf.String() != want {
		t.Errorf("WriteCSV() =\n%s\nwant\n%s", buf.String(), want)
	}

	if _, err := ReadCSV(strings.NewReader(""), Options{}); err == nil {
		t.Error("ReadCSV should fail without a header")
	}
}
