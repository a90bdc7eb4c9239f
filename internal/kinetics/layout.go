package kinetics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"kinfit/internal/model"
)

// Layout maps between the optimizer's free vector and the full canonical
// parameter vector of a model. It is the only place where parameter positions
// are materialized.
type Layout struct {
	model Model
	fixed map[Param]float64
	free  []Param
	// index[i] is the canonical position of free parameter i.
	index []int
}

func NewLayout(m Model, fixed model.FixedParameters) (Layout, error) {
	if m == nil {
		return Layout{}, fmt.Errorf("model is required")
	}
	params := m.Params()

	resolved := make(map[Param]float64, len(fixed))
	names := make([]string, 0, len(fixed))
	for name := range fixed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p, ok := resolveParam(name, params)
		if !ok {
			return Layout{}, fmt.Errorf("unknown parameter %q for model %s (parameters: %s)", name, m.Kind(), joinParams(params))
		}
		if _, dup := resolved[p]; dup {
			return Layout{}, fmt.Errorf("parameter %s fixed more than once", p)
		}
		v := fixed[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Layout{}, fmt.Errorf("fixed parameter %s must be finite", p)
		}
		resolved[p] = v
	}

	l := Layout{model: m, fixed: resolved}
	for i, p := range params {
		if _, isFixed := resolved[p]; isFixed {
			continue
		}
		l.free = append(l.free, p)
		l.index = append(l.index, i)
	}
	return l, nil
}

func (l Layout) Model() Model {
	return l.model
}

// Dim is the number of free parameters the optimizer searches over.
func (l Layout) Dim() int {
	return len(l.free)
}

func (l Layout) Free() []Param {
	return append([]Param(nil), l.free...)
}

func (l Layout) Fixed() map[Param]float64 {
	out := make(map[Param]float64, len(l.fixed))
	for p, v := range l.fixed {
		out[p] = v
	}
	return out
}

// Bounds returns the search box over free parameters. overrides replace the
// default interval for a named free parameter.
func (l Layout) Bounds(overrides map[string]model.Bound) (model.Bounds, error) {
	params := l.model.Params()
	resolved := make(map[Param]model.Bound, len(overrides))
	for name, b := range overrides {
		p, ok := resolveParam(name, params)
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q for model %s", name, l.model.Kind())
		}
		if _, isFixed := l.fixed[p]; isFixed {
			return nil, fmt.Errorf("parameter %s is fixed and cannot be bounded", p)
		}
		if err := validateBound(p, b); err != nil {
			return nil, err
		}
		resolved[p] = b
	}

	out := make(model.Bounds, 0, len(l.free))
	for _, p := range l.free {
		if b, ok := resolved[p]; ok {
			out = append(out, b)
			continue
		}
		b, ok := DefaultBound(p)
		if !ok {
			return nil, fmt.Errorf("no default bound for parameter %s", p)
		}
		out = append(out, b)
	}
	return out, nil
}

// Assemble merges free values (in Free order) with the fixed values into the
// model's canonical parameter vector.
func (l Layout) Assemble(free []float64) ([]float64, error) {
	if len(free) != len(l.free) {
		return nil, fmt.Errorf("free parameter count mismatch: got=%d want=%d", len(free), len(l.free))
	}
	full := make([]float64, len(l.model.Params()))
	l.AssembleInto(full, free)
	return full, nil
}

// AssembleInto is Assemble without allocation; full must have the model's
// parameter count and free must have Dim entries.
func (l Layout) AssembleInto(full, free []float64) {
	for i, p := range l.model.Params() {
		if v, ok := l.fixed[p]; ok {
			full[i] = v
		}
	}
	for i, pos := range l.index {
		full[pos] = free[i]
	}
}

// Split is the inverse of Assemble.
func (l Layout) Split(full []float64) ([]float64, error) {
	if len(full) != len(l.model.Params()) {
		return nil, fmt.Errorf("parameter count mismatch: got=%d want=%d", len(full), len(l.model.Params()))
	}
	free := make([]float64, len(l.index))
	for i, pos := range l.index {
		free[i] = full[pos]
	}
	return free, nil
}

// Named labels a canonical parameter vector.
func (l Layout) Named(full []float64) map[string]float64 {
	params := l.model.Params()
	out := make(map[string]float64, len(params))
	for i, p := range params {
		if i < len(full) {
			out[string(p)] = full[i]
		}
	}
	return out
}

// Vector orders a named parameter set canonically. Every model parameter must
// be present.
func Vector(m Model, named map[string]float64) ([]float64, error) {
	params := m.Params()
	full := make([]float64, len(params))
	seen := make(map[Param]bool, len(params))
	for name, v := range named {
		p, ok := resolveParam(name, params)
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q for model %s", name, m.Kind())
		}
		seen[p] = true
		for i := range params {
			if params[i] == p {
				full[i] = v
			}
		}
	}
	var missing []string
	for _, p := range params {
		if !seen[p] {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing parameters for model %s: %s", m.Kind(), strings.Join(missing, ", "))
	}
	return full, nil
}

func resolveParam(name string, params []Param) (Param, bool) {
	name = strings.TrimSpace(name)
	for _, p := range params {
		if strings.EqualFold(string(p), name) {
			return p, true
		}
	}
	return "", false
}

func validateBound(p Param, b model.Bound) error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("bound for %s must be finite", p)
	}
	if b.Min > b.Max {
		return fmt.Errorf("bound for %s has min > max: [%g, %g]", p, b.Min, b.Max)
	}
	return nil
}

func joinParams(params []Param) string {
	names := make([]string, 0, len(params))
	for _, p := range params {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
