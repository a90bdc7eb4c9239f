package kinetics

import (
	"errors"
	"fmt"
	"strings"

	"kinfit/internal/model"
)

var ErrUnknownModel = errors.New("unknown kinetic model")

// Param names a kinetic parameter.
type Param string

const (
	ParamMu Param = "mu"
	ParamYx Param = "Yx"
	ParamYp Param = "Yp"
	ParamKs Param = "Ks"
	ParamKi Param = "Ki"
)

// Model is an ODE right-hand side over the state (X, S, P).
//
// Derivative writes dX/dt, dS/dt and dP/dt into dy. p holds the parameters in
// the order returned by Params.
type Model interface {
	Kind() model.Kind
	Params() []Param
	Derivative(t float64, y, p, dy []float64)
}

type monod struct{}

func (monod) Kind() model.Kind { return model.KindMonod }

func (monod) Params() []Param {
	return []Param{ParamMu, ParamYx, ParamYp, ParamKs}
}

func (monod) Derivative(_ float64, y, p, dy []float64) {
	x, s := y[0], y[1]
	mu, yx, yp, ks := p[0], p[1], p[2], p[3]

	dx := mu * x * s / (ks + s)
	dy[0] = dx
	dy[1] = -yx * dx
	dy[2] = yp * dx
}

type inhibition struct{}

func (inhibition) Kind() model.Kind { return model.KindInhibition }

func (inhibition) Params() []Param {
	return []Param{ParamMu, ParamYx, ParamYp, ParamKs, ParamKi}
}

// Haldane-Andrews substrate inhibition.
func (inhibition) Derivative(_ float64, y, p, dy []float64) {
	x, s := y[0], y[1]
	mu, yx, yp, ks, ki := p[0], p[1], p[2], p[3], p[4]

	dx := mu * x * s / (ks + s + s*s/ki)
	dy[0] = dx
	dy[1] = -yx * dx
	dy[2] = yp * dx
}

var catalog = []Model{monod{}, inhibition{}}

// Lookup resolves a model kind from the fixed catalog.
func Lookup(kind model.Kind) (Model, error) {
	for _, m := range catalog {
		if m.Kind() == kind {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownModel, string(kind), strings.Join(kindNames(), ", "))
}

// ParseKind normalizes a user-supplied model tag and resolves it.
func ParseKind(raw string) (Model, error) {
	return Lookup(model.Kind(strings.ToLower(strings.TrimSpace(raw))))
}

func Kinds() []model.Kind {
	out := make([]model.Kind, 0, len(catalog))
	for _, m := range catalog {
		out = append(out, m.Kind())
	}
	return out
}

func kindNames() []string {
	names := make([]string, 0, len(catalog))
	for _, kind := range Kinds() {
		names = append(names, string(kind))
	}
	return names
}

var defaultBounds = map[Param]model.Bound{
	ParamMu: {Min: 0, Max: 3},
	ParamYx: {Min: 0, Max: 1},
	ParamYp: {Min: 0, Max: 20},
	ParamKs: {Min: 0, Max: 400},
	ParamKi: {Min: 0, Max: 1},
}

// DefaultBound returns the search interval used when the caller supplies none.
func DefaultBound(p Param) (model.Bound, bool) {
	b, ok := defaultBounds[p]
	return b, ok
}

// DefaultBounds returns the default search box for every parameter of m in
// canonical order.
func DefaultBounds(m Model) model.Bounds {
	params := m.Params()
	out := make(model.Bounds, 0, len(params))
	for _, p := range params {
		out = append(out, defaultBounds[p])
	}
	return out
}
