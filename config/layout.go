package config

import (
	"path/filepath"
	"time"
)

// TimestampFormat names each run directory and log file.
const TimestampFormat = "01_02_2006_15_04_05"

// Layout is the set of artifact paths for one pipeline run. Every stage
// reads its inputs and writes its outputs through it.
type Layout struct {
	Timestamp string
	RunDir    string

	FeatureStoreFile string
	TrainFile        string
	ValidationFile   string
	TestFile         string

	ValidTrainFile      string
	ValidValidationFile string
	ValidTestFile       string
	DriftReportFile     string

	TransformedTrainFile      string
	TransformedValidationFile string
	TransformedTestFile       string
	EncoderFile               string
	FrequencyMapFile          string

	TrainedModelFile   string
	PredictionPlotFile string

	FinalModelDir string
}

// Final model directory file names.
const (
	BundleFileName       = "model.json"
	ModelOnlyFileName    = "model_only.json"
	PreprocessorFileName = "preprocessor.json"
	FrequencyMapFileName = "area_freq_map.json"
)

// NewLayout derives the artifact layout for a run started at now.
func NewLayout(cfg Config, now time.Time) Layout {
	ts := now.Format(TimestampFormat)
	run := filepath.Join(cfg.ArtifactDir, ts)

	ingestion := filepath.Join(run, "data_ingestion")
	validation := filepath.Join(run, "data_validation")
	transformation := filepath.Join(run, "data_transformation")
	trainer := filepath.Join(run, "model_trainer", "trained_model")

	return Layout{
		Timestamp: ts,
		RunDir:    run,

		FeatureStoreFile: filepath.Join(ingestion, "feature_store", "crop_yield.csv"),
		TrainFile:        filepath.Join(ingestion, "ingested", "train.csv"),
		ValidationFile:   filepath.Join(ingestion, "ingested", "validation.csv"),
		TestFile:         filepath.Join(ingestion, "ingested", "test.csv"),

		ValidTrainFile:      filepath.Join(validation, "validated", "train.csv"),
		ValidValidationFile: filepath.Join(validation, "validated", "validation.csv"),
		ValidTestFile:       filepath.Join(validation, "validated", "test.csv"),
		DriftReportFile:     filepath.Join(validation, "drift_report", "report.yaml"),

		TransformedTrainFile:      filepath.Join(transformation, "transformed", "train.bin"),
		TransformedValidationFile: filepath.Join(transformation, "transformed", "validation.bin"),
		TransformedTestFile:       filepath.Join(transformation, "transformed", "test.bin"),
		EncoderFile:               filepath.Join(transformation, "transformed_object", "preprocessing.json"),
		FrequencyMapFile:          filepath.Join(transformation, "transformed_object", FrequencyMapFileName),

		TrainedModelFile:   filepath.Join(trainer, "model.json"),
		PredictionPlotFile: filepath.Join(trainer, "prediction_vs_actual.png"),

		FinalModelDir: cfg.FinalModelDir,
	}
}

// LogFile returns the log file path for a run started at now, or "" when
// file logging is disabled.
func (c Config) LogFile(now time.Time) string {
	if c.LogDir == "" {
		return ""
	}
	return filepath.Join(c.LogDir, now.Format(TimestampFormat)+".log")
}
