package model

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Regressor{}
)

// RegisterRegressor makes a regressor type loadable by name. Estimator
// packages call it from init.
func RegisterRegressor(name string, factory func() Regressor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("model: RegisterRegressor called twice for " + name)
	}
	registry[name] = factory
}

// RegisteredRegressors returns the registered type names, sorted.
func RegisteredRegressors() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelSpec is the persisted form of a fitted regressor: its type name,
// its hyperparameters and its fitted state as produced by json.Marshal.
type ModelSpec struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params"`
	State  json.RawMessage        `json:"state"`
}

// EncodeRegressor captures r as a ModelSpec. r must be fitted and must
// implement json.Marshaler for its learned state.
func EncodeRegressor(r Regressor) (ModelSpec, error) {
	state, err := json.Marshal(r)
	if err != nil {
		return ModelSpec{}, errors.Wrapf(err, "encode %s state", r.Name())
	}
	return ModelSpec{Type: r.Name(), Params: r.GetParams(), State: state}, nil
}

// DecodeRegressor rebuilds a fitted regressor from spec. An unregistered
// type yields errors.ErrUnsupportedFormat.
func DecodeRegressor(spec ModelSpec) (Regressor, error) {
	registryMu.RLock()
	factory, ok := registry[spec.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnsupportedFormat, "model type %q", spec.Type)
	}

	r := factory()
	if len(spec.Params) > 0 {
		if err := r.SetParams(spec.Params); err != nil {
			return nil, errors.Wrapf(err, "restore %s params", spec.Type)
		}
	}
	if err := json.Unmarshal(spec.State, r); err != nil {
		return nil, errors.Wrapf(err, "restore %s state", spec.Type)
	}
	return r, nil
}
