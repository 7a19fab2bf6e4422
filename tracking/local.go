package tracking

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// RunFileName and ModelArtifactName are the files written per run.
const (
	RunFileName       = "run.yaml"
	ModelArtifactName = "model.json"
)

// LocalStore writes each run to <Dir>/<run id>/.
type LocalStore struct {
	Dir string
}

// NewLocalStore returns a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

type runDocument struct {
	ID         string                 `yaml:"id"`
	Experiment string                 `yaml:"experiment"`
	Model      string                 `yaml:"model"`
	StartedAt  time.Time              `yaml:"started_at"`
	Params     map[string]interface{} `yaml:"params"`
	Metrics    map[string]float64     `yaml:"metrics"`
	Artifact   string                 `yaml:"artifact,omitempty"`
}

// Record implements Sink.
func (s *LocalStore) Record(_ context.Context, run *Run) error {
	dir := filepath.Join(s.Dir, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create run directory %s", dir)
	}

	doc := runDocument{
		ID:         run.ID,
		Experiment: run.Experiment,
		Model:      run.Model,
		StartedAt:  run.StartedAt,
		Params:     run.Params,
		Metrics:    run.Metrics,
	}
	if run.ModelFile != "" {
		if err := copyFile(run.ModelFile, filepath.Join(dir, ModelArtifactName)); err != nil {
			return err
		}
		doc.Artifact = ModelArtifactName
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encode run")
	}
	if err := os.WriteFile(filepath.Join(dir, RunFileName), data, 0o644); err != nil {
		return errors.Wrapf(err, "write run %s", run.ID)
	}
	return nil
}

// LoadRun reads a run written by Record.
func (s *LocalStore) LoadRun(id string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, id, RunFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "read run %s", id)
	}
	var doc runDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "decode run %s", id)
	}
	run := &Run{
		ID:         doc.ID,
		Experiment: doc.Experiment,
		Model:      doc.Model,
		Params:     doc.Params,
		Metrics:    doc.Metrics,
		StartedAt:  doc.StartedAt,
	}
	if doc.Artifact != "" {
		run.ModelFile = filepath.Join(s.Dir, id, doc.Artifact)
	}
	return run, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "copy %s", src)
	}
	return errors.Wrapf(out.Close(), "close %s", dst)
}
