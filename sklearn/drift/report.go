package drift

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ColumnReport is the drift verdict for one column.
type ColumnReport struct {
	PValue        float64 `yaml:"p_value" json:"p_value"`
	DriftDetected bool    `yaml:"drift_detected" json:"drift_detected"`
}

// Report maps column names to their verdicts.
type Report map[string]ColumnReport

// Drifted returns the drifted columns, sorted.
func (r Report) Drifted() []string {
	var out []string
	for name, c := range r {
		if c.DriftDetected {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Status is true when no column drifted.
func (r Report) Status() bool {
	return len(r.Drifted()) == 0
}

// Save writes the report as YAML.
func (r Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	data, err := yaml.Marshal(map[string]ColumnReport(r))
	if err != nil {
		return errors.Wrap(err, "encode drift report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return r, nil
}

// CompareFrames tests every column present in both frames. A column is
// drifted when its p-value is below threshold. Numeric columns are compared
// on their values and categorical columns on category ranks; a column that
// is numeric in one frame and categorical in the other is compared on the
// string form of its values.
func CompareFrames(base, current *dataset.Frame, threshold float64) (Report, error) {
	report := make(Report)
	for _, name := range base.Names() {
		if !current.Has(name) {
			continue
		}
		a, _ := base.Column(name)
		b, _ := current.Column(name)

		var (
			res KSResult
			err error
		)
		if a.Kind == dataset.Numeric && b.Kind == dataset.Numeric {
			res, err = KSTwoSample(a.Nums, b.Nums)
		} else {
			res, err = KSCategorical(present(a), present(b))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", name)
		}
		report[name] = ColumnReport{PValue: res.PValue, DriftDetected: res.PValue < threshold}
	}
	return report, nil
}

func present(c *dataset.Column) []string {
	out := make([]string, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			out = append(out, c.String(i))
		}
	}
	return out
}
