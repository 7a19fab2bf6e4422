// Package tracking records training runs: hyperparameters, metrics and the
// serialized model of the selected candidate.
//
// A Sink is best effort from the pipeline's point of view. Wrap a remote
// sink in Fallback so that a failure degrades to a local record.
package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
)

// Run is one training run as seen by a Sink.
type Run struct {
	ID         string
	Experiment string
	// Model is the registry name of the selected regressor.
	Model     string
	Params    map[string]interface{}
	Metrics   map[string]float64
	// ModelFile is a serialized model envelope copied into the run, if set.
	ModelFile string
	StartedAt time.Time
}

// NewRun starts a run with a fresh identifier.
func NewRun(experiment, model string) *Run {
	return &Run{
		ID:         uuid.NewString(),
		Experiment: experiment,
		Model:      model,
		Params:     map[string]interface{}{},
		Metrics:    map[string]float64{},
		StartedAt:  time.Now().UTC(),
	}
}

// Sink persists runs.
type Sink interface {
	Record(ctx context.Context, run *Run) error
}

// Fallback records to Primary and, when that fails, to Secondary. The
// primary error is logged, not returned.
type Fallback struct {
	Primary   Sink
	Secondary Sink
	Logger    log.Logger
}

// Record implements Sink.
func (f *Fallback) Record(ctx context.Context, run *Run) error {
	err := f.Primary.Record(ctx, run)
	if err == nil {
		return nil
	}
	logger := f.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger.Warn("tracking sink failed, recording locally",
		log.RunIDKey, run.ID,
		log.ErrorCodeKey, log.ErrorTrackingFailed,
		"error", err,
	)
	if err2 := f.Secondary.Record(ctx, run); err2 != nil {
		return errors.Wrap(err2, "fallback tracking sink")
	}
	return nil
}

// FromConfig builds the sink for cfg: a local store, fronted by a
// pushgateway when one is configured.
func FromConfig(cfg config.TrackingConfig, logger log.Logger) Sink {
	local := NewLocalStore(cfg.Dir)
	if cfg.PushgatewayURL == "" {
		return local
	}
	return &Fallback{
		Primary:   NewPushgateway(cfg.PushgatewayURL, cfg.Job, cfg.Timeout),
		Secondary: local,
		Logger:    logger,
	}
}
