package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "LinearRegression", "StandardScaler", "RandomForestRegressor"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package emitted the record.
	ComponentKey = "ml.component"

	// StageKey names the pipeline stage.
	// Examples: "data_ingestion", "data_validation"
	StageKey = "ml.stage"

	// CandidateKey names a model candidate during selection.
	CandidateKey = "ml.candidate"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	// SamplesKey is the number of rows.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of feature columns.
	FeaturesKey = "data.features"

	// PartitionKey names a data partition: train, validation or test.
	PartitionKey = "data.partition"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// DroppedKey is the number of rows removed by a cleaning step.
	DroppedKey = "data.dropped"
)

// Metrics and timing.
const (
	DurationMsKey = "perf.duration_ms"
	R2ScoreKey    = "metrics.r2_score"
	RMSEKey       = "metrics.rmse"
	MAEKey        = "metrics.mae"
	PValueKey     = "metrics.p_value"
	CVScoreKey    = "metrics.cv_score"
)

// Run and artifact context.
const (
	// RunIDKey is the experiment-tracking run identifier.
	RunIDKey = "run.id"

	// ArtifactPathKey is a file written by a stage.
	ArtifactPathKey = "artifact.path"

	// HyperParamsKey holds a candidate's parameter set.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the seed used for splits and shuffles.
	RandomSeedKey = "config.random_seed"
)

// Error context.
const (
	// ErrorCodeKey provides a structured error code.
	ErrorCodeKey = "error.code"

	// StacktraceKey holds the stack recorded by cockroachdb/errors.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
	PhaseInference  = "inference"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorCandidateFailed   = "CANDIDATE_FAILED"
	ErrorTrackingFailed    = "TRACKING_FAILED"
)
