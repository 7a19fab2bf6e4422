package model

import (
	"math"

	"github.com/YuminosukeSato/cropyield/pkg/errors"
)

// ParamInt reads an integer hyperparameter. Values decoded from JSON arrive
// as float64 and are accepted when they hold a whole number.
func ParamInt(params map[string]interface{}, key string) (int, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int64:
		return int(n), true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, true, errors.NewValidationError(key, "must be an integer", v)
		}
		return int(n), true, nil
	default:
		return 0, true, errors.NewValidationError(key, "must be a number", v)
	}
}

// ParamFloat reads a floating-point hyperparameter.
func ParamFloat(params map[string]interface{}, key string) (float64, bool, error) {
	v, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	default:
		return 0, true, errors.NewValidationError(key, "must be a number", v)
	}
}

// ParamBool reads a boolean hyperparameter.
func ParamBool(params map[string]interface{}, key string) (bool, bool, error) {
	v, ok := params[key]
	if !ok {
		return false, false, nil
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, true, errors.NewValidationError(key, "must be a boolean", v)
	}
	return b, true, nil
}

// CheckParamKeys returns a ValidationError for the first key not in allowed.
func CheckParamKeys(params map[string]interface{}, allowed ...string) error {
	for key := range params {
		found := false
		for _, a := range allowed {
			if key == a {
				found = true
				break
			}
		}
		if !found {
			return errors.NewValidationError(key, "unknown parameter", params[key])
		}
	}
	return nil
}
