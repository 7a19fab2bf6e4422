package model_selection

import "sort"

// ParamGrid maps hyperparameter names to the values to try.
type ParamGrid map[string][]interface{}

// Combinations expands the grid into every parameter set. Keys are
// iterated in sorted order with the last key varying fastest, so the
// order is stable between runs. An empty grid yields one empty set.
func (g ParamGrid) Combinations() []map[string]interface{} {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]interface{}{{}}
	for _, k := range keys {
		values := g[k]
		if len(values) == 0 {
			continue
		}
		next := make([]map[string]interface{}, 0, len(out)*len(values))
		for _, base := range out {
			for _, v := range values {
				m := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					m[bk] = bv
				}
				m[k] = v
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}

// Size is the number of parameter sets Combinations returns.
func (g ParamGrid) Size() int {
	n := 1
	for _, values := range g {
		if len(values) > 0 {
			n *= len(values)
		}
	}
	return n
}
