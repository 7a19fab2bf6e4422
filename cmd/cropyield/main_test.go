package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/inference"
	"github.com/YuminosukeSato/cropyield/internal/synthetic"
	"github.com/YuminosukeSato/cropyield/linear"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pipeline/transformation"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/preprocessing"
	"github.com/YuminosukeSato/cropyield/schema"
)

const rowsCSV = `Area,Crop,Season,Item,Year,average_rain_fall_mm_per_year,pesticides_tonnes,avg_temp
India,Cereal,Rabi,Maize,2005,1200,2500,21.5
Atlantis,Cereal,Kharif,Soybeans,1999,950,1800,24.1
`

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

// newTestCLI isolates the command from the working directory: logs go to
// a temp dir and nothing is read from a config file.
func newTestCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	t.Setenv("CROPYIELD_LOG_DIR", t.TempDir())
	t.Setenv("CROPYIELD_LOG_LEVEL", "debug")
	stderr := &bytes.Buffer{}
	return &cli{stderr: stderr, now: func() time.Time { return fixedNow }}, stderr
}

func writeModel(t *testing.T) string {
	t.Helper()
	s, err := schema.Default()
	require.NoError(t, err)
	records := synthetic.Records(150, 5, synthetic.Options{Noise: 50})
	for _, r := range records {
		delete(r, "_id")
	}
	f, err := dataset.FromRecords(records, dataset.Options{ColumnOrder: s.ColumnNames()})
	require.NoError(t, err)
	features, target, err := transformation.SplitFeatures(f, s, artifact.PartitionTrain)
	require.NoError(t, err)

	freq := preprocessing.NewFrequencyEncoder(s.FrequencyEncodedColumn)
	require.NoError(t, freq.Fit(features))
	encoded, err := freq.Transform(features)
	require.NoError(t, err)
	enc := preprocessing.NewColumnEncoderForSchema(s)
	X, err := enc.FitTransform(encoded)
	require.NoError(t, err)
	reg := linear.NewLinearRegression()
	require.NoError(t, reg.Fit(X, mat.NewDense(len(target), 1, target)))

	dir := t.TempDir()
	b := &artifact.Bundle{FrequencyMap: freq, Encoder: enc, Model: reg, CreatedAt: fixedNow}
	require.NoError(t, b.Save(filepath.Join(dir, config.BundleFileName)))
	return dir
}

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPredictCommandFiles(t *testing.T) {
	c, stderr := newTestCLI(t)
	modelDir := writeModel(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "rows.csv")
	output := filepath.Join(dir, "out", "predictions.csv")
	require.NoError(t, os.WriteFile(input, []byte(rowsCSV), 0o644))

	cmd := c.newRootCommand()
	cmd.SetArgs([]string{"predict", "--model-dir", modelDir, "--input", input, "--output", output})
	require.NoError(t, cmd.Execute())
	c.close()

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	rows := readCSV(t, string(data))
	require.Len(t, rows, 3)
	assert.Equal(t, inference.PredictionColumn, rows[0][len(rows[0])-1])
	for _, row := range rows[1:] {
		assert.NotEmpty(t, row[len(row)-1])
	}

	assert.Contains(t, stderr.String(), "predictions written")
	logFile := c.cfg.LogFile(fixedNow)
	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "predictions written")
}

func TestPredictCommandStdio(t *testing.T) {
	c, _ := newTestCLI(t)
	modelDir := writeModel(t)

	cmd := c.newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(rowsCSV))
	cmd.SetOut(out)
	cmd.SetArgs([]string{"predict", "--model-dir", modelDir})
	require.NoError(t, cmd.Execute())
	c.close()

	rows := readCSV(t, out.String())
	require.Len(t, rows, 3)
	assert.Equal(t, inference.PredictionColumn, rows[0][len(rows[0])-1])
}

func TestPredictCommandMissingModel(t *testing.T) {
	c, _ := newTestCLI(t)
	cmd := c.newRootCommand()
	cmd.SetIn(strings.NewReader(rowsCSV))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"predict", "--model-dir", t.TempDir()})
	err := cmd.Execute()
	c.close()
	require.Error(t, err)
	assert.Equal(t, errors.StageInference, errorCode(err))
}

func TestLoadDataRequiresMongoURL(t *testing.T) {
	c, _ := newTestCLI(t)
	t.Setenv("MONGO_DB_URL", "")
	t.Setenv("CROPYIELD_MONGO_URL", "")
	input := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(input, []byte(rowsCSV), 0o644))

	cmd := c.newRootCommand()
	cmd.SetArgs([]string{"load-data", input})
	err := cmd.Execute()
	c.close()

	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "MONGO_DB_URL", cfgErr.File)
	assert.Equal(t, "CONFIG", errorCode(err))
}

func TestLoadDataMissingFile(t *testing.T) {
	c, _ := newTestCLI(t)
	cmd := c.newRootCommand()
	cmd.SetArgs([]string{"load-data", filepath.Join(t.TempDir(), "absent.csv")})
	err := cmd.Execute()
	c.close()
	require.Error(t, err)
	assert.Equal(t, "UNKNOWN", errorCode(err))
}

func TestInvalidLogLevel(t *testing.T) {
	c, stderr := newTestCLI(t)
	cmd := c.newRootCommand()
	cmd.SetArgs([]string{"--log-level", "loud", "predict"})
	err := cmd.Execute()
	c.close()

	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Nil(t, c.logger)
	assert.Empty(t, stderr.String())
}

func TestRunExitCode(t *testing.T) {
	t.Setenv("CROPYIELD_LOG_DIR", t.TempDir())
	assert.Equal(t, 1, run([]string{"--log-level", "loud", "predict"}))
	assert.Equal(t, 0, run([]string{"--help"}))
}
