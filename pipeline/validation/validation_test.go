package validation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/dataset"
	"github.com/YuminosukeSato/cropyield/internal/synthetic"
	"github.com/YuminosukeSato/cropyield/pipeline/artifact"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
	"github.com/YuminosukeSato/cropyield/schema"
	"github.com/YuminosukeSato/cropyield/sklearn/drift"
)

func frameOf(t *testing.T, n int, seed uint64) *dataset.Frame {
	t.Helper()
	s, err := schema.Default()
	require.NoError(t, err)
	records := synthetic.Records(n, seed, synthetic.Options{Noise: 100})
	for _, r := range records {
		delete(r, "_id")
	}
	f, err := dataset.FromRecords(records, dataset.Options{ColumnOrder: s.ColumnNames()})
	require.NoError(t, err)
	return f
}

func writePartitions(t *testing.T, train, val, test *dataset.Frame) *artifact.Ingestion {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "ingested")
	in := &artifact.Ingestion{
		TrainFile:      filepath.Join(dir, "train.csv"),
		ValidationFile: filepath.Join(dir, "validation.csv"),
		TestFile:       filepath.Join(dir, "test.csv"),
	}
	require.NoError(t, dataset.WriteCSVFile(in.TrainFile, train))
	require.NoError(t, dataset.WriteCSVFile(in.ValidationFile, val))
	require.NoError(t, dataset.WriteCSVFile(in.TestFile, test))
	return in
}

func newStage(t *testing.T, failOnDrift bool) (*Stage, *log.TestLogger) {
	t.Helper()
	cfg := config.Default()
	cfg.ArtifactDir = t.TempDir()
	cfg.Validation.FailOnDrift = failOnDrift
	layout := config.NewLayout(cfg, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
	s, err := schema.Default()
	require.NoError(t, err)
	logger, _ := log.NewTestLogger(log.LevelDebug)
	return New(cfg, layout, s, logger), logger
}

func shiftTemperature(t *testing.T, f *dataset.Frame, by float64) *dataset.Frame {
	t.Helper()
	temps, err := f.Numeric("avg_temp")
	require.NoError(t, err)
	shifted := make([]float64, len(temps))
	for i, v := range temps {
		shifted[i] = v + by
	}
	out, err := f.WithColumn(dataset.NumericColumn("avg_temp", shifted))
	require.NoError(t, err)
	return out
}

func TestRunNoDrift(t *testing.T) {
	train := frameOf(t, 200, 1)
	in := writePartitions(t, train, frameOf(t, 60, 2), train)
	stage, _ := newStage(t, false)

	art, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, art.Status)
	assert.Empty(t, art.DriftedColumns)

	report, err := drift.LoadReport(art.DriftReportFile)
	require.NoError(t, err)
	assert.Len(t, report, 9)
	for col, r := range report {
		assert.False(t, r.DriftDetected, col)
	}
	for _, path := range []string{art.ValidTrainFile, art.ValidValidationFile, art.ValidTestFile} {
		assert.FileExists(t, path)
	}
}

func TestRunDriftIsAdvisory(t *testing.T) {
	train := frameOf(t, 200, 1)
	test := shiftTemperature(t, train, 100)
	in := writePartitions(t, train, frameOf(t, 60, 2), test)
	stage, logger := newStage(t, false)

	art, err := stage.Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, art.Status)
	assert.Equal(t, []string{"avg_temp"}, art.DriftedColumns)
	assert.FileExists(t, art.ValidTestFile)
	assert.True(t, logger.ContainsField(log.ColumnKey, "avg_temp"))

	report, err := drift.LoadReport(art.DriftReportFile)
	require.NoError(t, err)
	assert.True(t, report["avg_temp"].DriftDetected)
	assert.Less(t, report["avg_temp"].PValue, 0.05)
}

func TestRunFailOnDrift(t *testing.T) {
	train := frameOf(t, 200, 1)
	in := writePartitions(t, train, frameOf(t, 60, 2), shiftTemperature(t, train, 100))
	stage, _ := newStage(t, true)

	_, err := stage.Run(context.Background(), in)
	require.Error(t, err)
	var de *errors.DriftError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []string{"avg_temp"}, de.Columns)
	var se *errors.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, errors.StageValidation, se.Stage)
}

func TestRunColumnCountMismatch(t *testing.T) {
	train := frameOf(t, 100, 1)
	extra, err := frameOf(t, 40, 3).WithColumn(dataset.NumericColumn("humidity", make([]float64, 40)))
	require.NoError(t, err)
	in := writePartitions(t, train, extra, train)
	stage, _ := newStage(t, false)

	_, err = stage.Run(context.Background(), in)
	require.Error(t, err)
	var schemaErr *errors.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "validation", schemaErr.Partition)
	assert.Equal(t, 9, schemaErr.Expected)
	assert.Equal(t, 10, schemaErr.Got)
}
