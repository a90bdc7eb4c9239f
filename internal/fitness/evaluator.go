package fitness

import (
	"fmt"
	"math"

	"kinfit/internal/kinetics"
	"kinfit/internal/model"
	"kinfit/internal/ode"
	"kinfit/internal/simulation"
)

// Penalty is returned for candidates whose simulation diverges. Any finite
// error above it is clamped to it so rankings stay finite. evo counts scores
// at or above it as penalized in its generation diagnostics.
const Penalty = 1e12

// Evaluator scores a free parameter vector against observed data by the
// pooled mean squared error over X, S and P.
type Evaluator struct {
	layout  kinetics.Layout
	data    model.Dataset
	y0      []float64
	options ode.Options
}

// NewEvaluator expects data validated at the boundary: equal series lengths,
// strictly increasing times.
func NewEvaluator(layout kinetics.Layout, data model.Dataset, opts ode.Options) (*Evaluator, error) {
	if layout.Model() == nil {
		return nil, fmt.Errorf("parameter layout is required")
	}
	n := data.Len()
	if n == 0 {
		return nil, fmt.Errorf("observed data is required")
	}
	if len(data.X) != n || len(data.S) != n || len(data.P) != n {
		return nil, fmt.Errorf("observed series lengths differ from time points")
	}
	return &Evaluator{
		layout:  layout,
		data:    data,
		y0:      data.InitialState(),
		options: opts,
	}, nil
}

// Evaluate assembles, simulates and scores one candidate. It never returns a
// non-finite value.
func (e *Evaluator) Evaluate(free []float64) float64 {
	full, err := e.layout.Assemble(free)
	if err != nil {
		return Penalty
	}
	traj, _, err := simulation.Simulate(e.layout.Model(), e.y0, e.data.Time, full, e.options)
	if err != nil || !traj.Finite() {
		return Penalty
	}
	return Score(traj, e.data)
}

// Func returns Evaluate as a plain objective, assignable to both
// evo.FitnessFunc and tuning.FitnessFn.
func (e *Evaluator) Func() func([]float64) float64 {
	return e.Evaluate
}

// Score computes (sum of squared residuals over all state variables) divided
// by the number of observed time points, clamped to Penalty.
func Score(traj model.Trajectory, data model.Dataset) float64 {
	observed := data.Observed()
	n := data.Len()
	if n == 0 || traj.Len() != n || len(traj.States) < len(observed) {
		return Penalty
	}
	sum := 0.0
	for i, series := range observed {
		simulated := traj.States[i]
		for k := 0; k < n; k++ {
			d := simulated[k] - series[k]
			sum += d * d
		}
	}
	err := sum / float64(n)
	if math.IsNaN(err) || math.IsInf(err, 0) || err > Penalty {
		return Penalty
	}
	return err
}
