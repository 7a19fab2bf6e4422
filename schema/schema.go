// Package schema describes the expected shape of the crop yield dataset.
//
// The schema is used for column-count validation and to select the columns
// each encoder works on. It never coerces values.
package schema

import (
	_ "embed"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

//go:embed schema.yaml
var defaultDocument []byte

// DefaultSource is the name reported in errors for the embedded document.
const DefaultSource = "schema.yaml (embedded)"

// Column is one declared column.
type Column struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Schema is the parsed schema document.
type Schema struct {
	Columns                []Column `yaml:"columns"`
	NumericalColumns       []string `yaml:"numerical_columns"`
	CategoricalColumns     []string `yaml:"categorical_columns"`
	TargetColumn           string   `yaml:"target_column"`
	FrequencyEncodedColumn string   `yaml:"frequency_encoded_column"`
}

// Default returns the embedded schema.
func Default() (*Schema, error) {
	return Parse(defaultDocument, DefaultSource)
}

// Load reads the schema at path, or the embedded default when path is empty.
func Load(path string) (*Schema, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError(path, 0, err)
	}
	return Parse(data, path)
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Parse decodes and validates a schema document. source names the document
// in errors.
func Parse(data []byte, source string) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		line := 0
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			line, _ = strconv.Atoi(m[1])
		}
		return nil, errors.NewConfigError(source, line, err)
	}
	if s.FrequencyEncodedColumn == "" {
		s.FrequencyEncodedColumn = "Area"
	}
	if err := s.Validate(); err != nil {
		return nil, errors.NewConfigError(source, 0, err)
	}
	return &s, nil
}

// Validate checks that every referenced column is declared and that the
// target is not also listed as a feature.
func (s *Schema) Validate() error {
	if len(s.Columns) == 0 {
		return errors.New("columns must not be empty")
	}
	declared := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return errors.New("column with empty name")
		}
		if declared[c.Name] {
			return errors.Newf("column %q declared twice", c.Name)
		}
		declared[c.Name] = true
	}
	if s.TargetColumn == "" {
		return errors.New("target_column must be set")
	}
	if !declared[s.TargetColumn] {
		return errors.Newf("target_column %q is not declared in columns", s.TargetColumn)
	}
	for _, list := range [][]string{s.NumericalColumns, s.CategoricalColumns} {
		for _, name := range list {
			if !declared[name] {
				return errors.Newf("column %q is not declared in columns", name)
			}
			if name == s.TargetColumn {
				return errors.Newf("target_column %q must not be listed as a feature", name)
			}
		}
	}
	found := false
	for _, name := range s.CategoricalColumns {
		if name == s.FrequencyEncodedColumn {
			found = true
		}
	}
	if !found {
		return errors.Newf("frequency_encoded_column %q must be a categorical column", s.FrequencyEncodedColumn)
	}
	return nil
}

// NumColumns is the declared column count, target included.
func (s *Schema) NumColumns() int {
	return len(s.Columns)
}

// ColumnNames returns the declared column names in order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// FeatureColumns returns numerical then categorical column names.
func (s *Schema) FeatureColumns() []string {
	out := make([]string, 0, len(s.NumericalColumns)+len(s.CategoricalColumns))
	out = append(out, s.NumericalColumns...)
	return append(out, s.CategoricalColumns...)
}

// OneHotColumns returns the categorical columns other than the
// frequency-encoded one.
func (s *Schema) OneHotColumns() []string {
	out := make([]string, 0, len(s.CategoricalColumns))
	for _, name := range s.CategoricalColumns {
		if name != s.FrequencyEncodedColumn {
			out = append(out, name)
		}
	}
	return out
}
