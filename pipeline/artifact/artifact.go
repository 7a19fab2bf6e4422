// Package artifact defines what each pipeline stage hands to the next one,
// and the model bundle the trainer publishes for inference.
package artifact

import "github.com/YuminosukeSato/cropyield/metrics"

// Ingestion is produced by the ingestion stage.
type Ingestion struct {
	FeatureStoreFile string
	TrainFile        string
	ValidationFile   string
	TestFile         string

	// Rows is the size of the cleaned set; Dropped counts rows removed by
	// the target filter and the outlier filters.
	Rows    int
	Dropped int
}

// Validation is produced by the validation stage.
type Validation struct {
	// Status is false when drift was detected in any column.
	Status bool

	ValidTrainFile      string
	ValidValidationFile string
	ValidTestFile       string
	DriftReportFile     string

	DriftedColumns []string
}

// Transformation is produced by the transformation stage. The matrix files
// hold the encoded features followed by the target in the last column.
type Transformation struct {
	TrainFile      string
	ValidationFile string
	TestFile       string

	EncoderFile      string
	FrequencyMapFile string

	FeatureNames []string
}

// ModelTrainer is produced by the trainer stage.
type ModelTrainer struct {
	// CandidateName is the selected model family; ModelName its registry
	// type name.
	CandidateName string
	ModelName     string
	Params        map[string]interface{}

	TrainMetrics metrics.RegressionReport
	TestMetrics  metrics.RegressionReport

	// ValidationScores is the validation R² of every candidate that fitted.
	ValidationScores map[string]float64

	TrainedModelFile string
	BundleFile       string
	PlotFile         string
	RunID            string
}
