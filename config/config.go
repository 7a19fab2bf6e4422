// Package config loads the pipeline configuration and derives the
// per-run artifact layout.
package config

import (
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
)

// Config is the whole pipeline configuration. It is built once by the
// entry point and passed by value to each stage.
type Config struct {
	PipelineName  string `mapstructure:"pipeline_name"`
	ArtifactDir   string `mapstructure:"artifact_dir"`
	FinalModelDir string `mapstructure:"final_model_dir"`
	SchemaPath    string `mapstructure:"schema_path"`
	LogLevel      string `mapstructure:"log_level"`
	LogDir        string `mapstructure:"log_dir"`

	Mongo      MongoConfig      `mapstructure:"mongo"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Validation ValidationConfig `mapstructure:"validation"`
	Trainer    TrainerConfig    `mapstructure:"trainer"`
	Tracking   TrackingConfig   `mapstructure:"tracking"`
}

// MongoConfig holds the record source settings.
type MongoConfig struct {
	URL        string        `mapstructure:"url"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// IngestionConfig holds cleaning and split settings.
type IngestionConfig struct {
	TrainRatio      float64  `mapstructure:"train_ratio"`
	ValidationRatio float64  `mapstructure:"validation_ratio"`
	TestRatio       float64  `mapstructure:"test_ratio"`
	RandomSeed      uint64   `mapstructure:"random_seed"`
	MissingTokens   []string `mapstructure:"missing_tokens"`
	ImputeColumns   []string `mapstructure:"impute_columns"`
	OutlierColumns  []string `mapstructure:"outlier_columns"`
	IQRMultiplier   float64  `mapstructure:"iqr_multiplier"`
}

// ValidationConfig holds drift detection settings.
type ValidationConfig struct {
	DriftThreshold float64 `mapstructure:"drift_threshold"`
	// FailOnDrift turns detected drift into a fatal error. Off by default:
	// drift is reported and training continues.
	FailOnDrift bool `mapstructure:"fail_on_drift"`
}

// TrainerConfig holds model selection settings.
type TrainerConfig struct {
	CVFolds    int    `mapstructure:"cv_folds"`
	NJobs      int    `mapstructure:"n_jobs"`
	RandomSeed uint64 `mapstructure:"random_seed"`
}

// TrackingConfig holds experiment tracking settings. An empty
// PushgatewayURL disables the remote sink.
type TrackingConfig struct {
	Dir            string        `mapstructure:"dir"`
	Experiment     string        `mapstructure:"experiment"`
	PushgatewayURL string        `mapstructure:"pushgateway_url"`
	Job            string        `mapstructure:"job"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// EnvPrefix is prepended to every environment override, e.g.
// CROPYIELD_VALIDATION_FAIL_ON_DRIFT.
const EnvPrefix = "CROPYIELD"

// Load reads configuration from defaults, an optional YAML file, a .env file
// in the working directory and the environment, in increasing precedence.
// An empty path skips the file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.NewConfigError(".env", 0, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The connection string keeps the name the deployment already uses.
	_ = v.BindEnv("mongo.url", "MONGO_DB_URL", EnvPrefix+"_MONGO_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.NewConfigError(path, 0, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.NewConfigError(path, 0, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.NewConfigError(path, 0, err)
	}
	return cfg, nil
}

// Default returns the configuration with every default applied and nothing
// read from files or the environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline_name", "crop_yield")
	v.SetDefault("artifact_dir", "artifacts")
	v.SetDefault("final_model_dir", "final_model")
	v.SetDefault("schema_path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")

	v.SetDefault("mongo.url", "")
	v.SetDefault("mongo.database", "crop_yield")
	v.SetDefault("mongo.collection", "crop_yield_data")
	v.SetDefault("mongo.timeout", "30s")

	v.SetDefault("ingestion.train_ratio", 0.6)
	v.SetDefault("ingestion.validation_ratio", 0.2)
	v.SetDefault("ingestion.test_ratio", 0.2)
	v.SetDefault("ingestion.random_seed", 42)
	v.SetDefault("ingestion.missing_tokens", []string{"na"})
	v.SetDefault("ingestion.impute_columns", []string{"average_rain_fall_mm_per_year", "pesticides_tonnes", "avg_temp"})
	v.SetDefault("ingestion.outlier_columns", []string{"hg/ha_yield", "pesticides_tonnes", "avg_temp"})
	v.SetDefault("ingestion.iqr_multiplier", 1.5)

	v.SetDefault("validation.drift_threshold", 0.05)
	v.SetDefault("validation.fail_on_drift", false)

	v.SetDefault("trainer.cv_folds", 3)
	v.SetDefault("trainer.n_jobs", 0)
	v.SetDefault("trainer.random_seed", 42)

	v.SetDefault("tracking.dir", "mlruns")
	v.SetDefault("tracking.experiment", "crop_yield")
	v.SetDefault("tracking.pushgateway_url", "")
	v.SetDefault("tracking.job", "cropyield_training")
	v.SetDefault("tracking.timeout", "10s")
}

// Validate checks ratios, thresholds and required names.
func (c Config) Validate() error {
	in := c.Ingestion
	for name, r := range map[string]float64{
		"ingestion.train_ratio":      in.TrainRatio,
		"ingestion.validation_ratio": in.ValidationRatio,
		"ingestion.test_ratio":       in.TestRatio,
	} {
		if r <= 0 || r >= 1 {
			return errors.NewValidationError(name, "must be in (0, 1)", r)
		}
	}
	if sum := in.TrainRatio + in.ValidationRatio + in.TestRatio; math.Abs(sum-1) > 1e-9 {
		return errors.NewValidationError("ingestion ratios", "must sum to 1", sum)
	}
	if in.IQRMultiplier <= 0 {
		return errors.NewValidationError("ingestion.iqr_multiplier", "must be positive", in.IQRMultiplier)
	}
	if t := c.Validation.DriftThreshold; t <= 0 || t >= 1 {
		return errors.NewValidationError("validation.drift_threshold", "must be in (0, 1)", t)
	}
	if c.Trainer.CVFolds < 2 {
		return errors.NewValidationError("trainer.cv_folds", "must be at least 2", c.Trainer.CVFolds)
	}
	if c.Mongo.Database == "" || c.Mongo.Collection == "" {
		return errors.NewValidationError("mongo", "database and collection must be set", c.Mongo)
	}
	if c.ArtifactDir == "" || c.FinalModelDir == "" {
		return errors.NewValidationError("artifact_dir", "artifact and final model directories must be set", c.ArtifactDir)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", err.Error(), c.LogLevel)
	}
	return nil
}
