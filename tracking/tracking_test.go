package tracking

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/cropyield/config"
	"github.com/YuminosukeSato/cropyield/pkg/errors"
	"github.com/YuminosukeSato/cropyield/pkg/log"
)

func testRun(t *testing.T) *Run {
	t.Helper()
	run := NewRun("crop_yield", "RandomForestRegressor")
	run.Params["n_estimators"] = 100
	run.Params["max_depth"] = 10
	run.Metrics["test_r2_score"] = 0.97
	run.Metrics["test_rmse"] = 1234.5
	return run
}

func TestLocalStoreRecord(t *testing.T) {
	dir := t.TempDir()
	modelFile := filepath.Join(dir, "model_only.json")
	require.NoError(t, os.WriteFile(modelFile, []byte(`{"format_version":1}`), 0o644))

	store := NewLocalStore(filepath.Join(dir, "mlruns"))
	run := testRun(t)
	run.ModelFile = modelFile
	require.NoError(t, store.Record(context.Background(), run))

	got, err := store.LoadRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "RandomForestRegressor", got.Model)
	assert.InDelta(t, 0.97, got.Metrics["test_r2_score"], 1e-12)
	assert.Equal(t, 100, got.Params["n_estimators"])

	data, err := os.ReadFile(got.ModelFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"format_version":1}`, string(data))
}

func TestLocalStoreMissingModelFile(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	run := testRun(t)
	run.ModelFile = filepath.Join(t.TempDir(), "absent.json")
	assert.Error(t, store.Record(context.Background(), run))
}

func TestPushgatewayRecord(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	run := testRun(t)
	sink := NewPushgateway(srv.URL, "cropyield_training", time.Second)
	require.NoError(t, sink.Record(context.Background(), run))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/metrics/job/cropyield_training/run_id/"+run.ID, path)
	assert.Contains(t, body, "cropyield_run_metric")
	assert.Contains(t, body, "test_r2_score")
}

type failingSink struct{ calls int }

func (f *failingSink) Record(context.Context, *Run) error {
	f.calls++
	return errors.New("gateway unavailable")
}

func TestFallbackRecordsLocally(t *testing.T) {
	dir := t.TempDir()
	logger, _ := log.NewTestLogger(log.LevelDebug)
	primary := &failingSink{}
	sink := &Fallback{Primary: primary, Secondary: NewLocalStore(dir), Logger: logger}

	run := testRun(t)
	require.NoError(t, sink.Record(context.Background(), run))
	assert.Equal(t, 1, primary.calls)
	assert.FileExists(t, filepath.Join(dir, run.ID, RunFileName))
	assert.True(t, logger.ContainsField(log.ErrorCodeKey, log.ErrorTrackingFailed))
}

func TestFallbackBothFail(t *testing.T) {
	sink := &Fallback{Primary: &failingSink{}, Secondary: &failingSink{}}
	err := sink.Record(context.Background(), testRun(t))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "fallback tracking sink"))
}

func TestFallbackOnUnreachableGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	sink := FromConfig(config.TrackingConfig{
		Dir:            dir,
		PushgatewayURL: srv.URL,
		Job:            "cropyield_training",
		Timeout:        time.Second,
	}, nil)
	require.IsType(t, &Fallback{}, sink)

	run := testRun(t)
	require.NoError(t, sink.Record(context.Background(), run))
	assert.FileExists(t, filepath.Join(dir, run.ID, RunFileName))
}

func TestFromConfigLocalOnly(t *testing.T) {
	sink := FromConfig(config.TrackingConfig{Dir: t.TempDir()}, nil)
	assert.IsType(t, &LocalStore{}, sink)
}
