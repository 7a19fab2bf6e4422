// Package synthetic generates crop yield records shaped like the documents
// in the production collection. It backs the pipeline tests.
package synthetic

import (
	"context"
	"math/rand/v2"
)

// Options controls the generated records.
type Options struct {
	// MissingFeatureRate is the share of rain, pesticide and temperature
	// values replaced by "na" or null.
	MissingFeatureRate float64
	// MissingTargetEvery nulls the target of every n-th record. Zero
	// disables it.
	MissingTargetEvery int
	// Nonlinear adds interaction and threshold effects that a linear model
	// cannot fit.
	Nonlinear bool
	// Noise is the standard deviation of the additive target noise.
	Noise float64
}

var (
	Areas   = []string{"India", "Kenya", "Peru", "Brazil", "Albania", "Japan", "Mexico", "Ghana"}
	Crops   = []string{"Cereal", "Tuber", "Legume"}
	Seasons = []string{"Kharif", "Rabi", "Whole Year"}
	Items   = []string{"Maize", "Potatoes", "Rice, paddy", "Soybeans"}
)

var itemEffect = map[string]float64{
	"Maize":       1500,
	"Potatoes":    9000,
	"Rice, paddy": 3000,
	"Soybeans":    -2000,
}

// Records returns n records generated from seed. Every record carries an
// "_id" like a stored document.
func Records(n int, seed uint64, opts Options) []map[string]any {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	records := make([]map[string]any, n)
	for i := range records {
		area := Areas[rng.IntN(len(Areas))]
		item := Items[rng.IntN(len(Items))]
		year := 1990 + rng.IntN(24)
		rain := 500 + 2000*rng.Float64()
		pest := 100 + 5000*rng.Float64()
		temp := 10 + 20*rng.Float64()

		y := 20000 + 4*rain + 0.8*pest + 250*temp + 50*float64(year-1990) + itemEffect[item]
		if opts.Nonlinear {
			if temp > 22 {
				y -= 6000
			}
			y += 0.002 * rain * pest / 10
		}
		y += opts.Noise * rng.NormFloat64()

		rec := map[string]any{
			"_id":                           i,
			"Area":                          area,
			"Crop":                          Crops[rng.IntN(len(Crops))],
			"Season":                        Seasons[rng.IntN(len(Seasons))],
			"Item":                          item,
			"Year":                          int32(year),
			"average_rain_fall_mm_per_year": rain,
			"pesticides_tonnes":             pest,
			"avg_temp":                      temp,
			"hg/ha_yield":                   y,
		}
		for _, col := range []string{"average_rain_fall_mm_per_year", "pesticides_tonnes", "avg_temp"} {
			if rng.Float64() < opts.MissingFeatureRate {
				if rng.IntN(2) == 0 {
					rec[col] = "na"
				} else {
					rec[col] = nil
				}
			}
		}
		if opts.MissingTargetEvery > 0 && i%opts.MissingTargetEvery == 0 {
			rec["hg/ha_yield"] = nil
		}
		records[i] = rec
	}
	return records
}

// Source serves fixed records as a record source.
type Source struct {
	Records []map[string]any
	Err     error
	// Calls counts FetchAll invocations.
	Calls int
}

// FetchAll returns copies of the records so that callers may modify them.
func (s *Source) FetchAll(_ context.Context, _, _ string) ([]map[string]any, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]map[string]any, len(s.Records))
	for i, r := range s.Records {
		c := make(map[string]any, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out, nil
}
