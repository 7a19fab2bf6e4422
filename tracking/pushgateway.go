package tracking

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// Pushgateway publishes run metrics as gauges to a Prometheus pushgateway,
// grouped by run id. Parameters travel as labels of an info gauge. The
// model file is not pushed.
type Pushgateway struct {
	URL    string
	Job    string
	Client *http.Client
}

// NewPushgateway returns a sink for the gateway at url.
func NewPushgateway(url, job string, timeout time.Duration) *Pushgateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pushgateway{URL: url, Job: job, Client: &http.Client{Timeout: timeout}}
}

// Record implements Sink.
func (p *Pushgateway) Record(ctx context.Context, run *Run) error {
	reg := prometheus.NewRegistry()

	metric := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cropyield",
		Name:      "run_metric",
		Help:      "Evaluation metric of a training run.",
	}, []string{"experiment", "model", "metric"})
	for name, v := range run.Metrics {
		metric.WithLabelValues(run.Experiment, run.Model, name).Set(v)
	}

	keys := make([]string, 0, len(run.Params))
	for k := range run.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cropyield",
		Name:      "run_param",
		Help:      "Hyperparameter of the selected model; the value is the label.",
	}, []string{"model", "param", "value"})
	for _, k := range keys {
		params.WithLabelValues(run.Model, k, fmt.Sprint(run.Params[k])).Set(1)
	}

	started := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cropyield",
		Name:      "run_started_timestamp_seconds",
		Help:      "Start time of the training run.",
	})
	started.Set(float64(run.StartedAt.Unix()))

	reg.MustRegister(metric, params, started)

	err := push.New(p.URL, p.Job).
		Client(p.Client).
		Gatherer(reg).
		Grouping("run_id", run.ID).
		PushContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "push run %s to %s", run.ID, p.URL)
	}
	return nil
}
