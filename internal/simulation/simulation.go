package simulation

import (
	"errors"
	"fmt"
	"math"

	"kinfit/internal/kinetics"
	"kinfit/internal/model"
	"kinfit/internal/ode"
)

// Outcome describes how an integration ended.
type Outcome struct {
	Converged bool      `json:"converged"`
	Reason    string    `json:"reason,omitempty"`
	Stats     ode.Stats `json:"stats"`
}

// Simulate integrates m from y0 over times with the given canonical parameter
// vector. Numerical failures are not errors: unreached points are NaN and the
// outcome reports the failure. Errors are returned only for structurally
// invalid input.
func Simulate(m kinetics.Model, y0, times, params []float64, opts ode.Options) (model.Trajectory, Outcome, error) {
	if m == nil {
		return model.Trajectory{}, Outcome{}, fmt.Errorf("model is required")
	}
	if len(params) != len(m.Params()) {
		return model.Trajectory{}, Outcome{}, fmt.Errorf("model %s expects %d parameters, got %d", m.Kind(), len(m.Params()), len(params))
	}
	if len(y0) != model.StateCount {
		return model.Trajectory{}, Outcome{}, fmt.Errorf("initial state must have %d values, got %d", model.StateCount, len(y0))
	}
	if len(times) == 0 {
		return model.Trajectory{}, Outcome{}, fmt.Errorf("time points are required")
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return model.Trajectory{}, Outcome{}, fmt.Errorf("time points must be strictly increasing at index %d", i)
		}
	}

	p := append([]float64(nil), params...)
	rhs := func(t float64, y, dy []float64) {
		m.Derivative(t, y, p, dy)
	}

	traj := model.NewTrajectory(times, model.StateCount)
	res, err := ode.Solve(rhs, y0, times, opts)
	if res.Y != nil {
		traj.States = res.Y
	} else {
		fillNaN(traj)
	}
	out := Outcome{Converged: err == nil, Stats: res.Stats}
	if err != nil {
		if !isNumerical(err) {
			return model.Trajectory{}, Outcome{}, err
		}
		out.Reason = err.Error()
		return traj, out, nil
	}
	if !traj.Finite() {
		out.Converged = false
		out.Reason = ode.ErrNonFinite.Error()
	}
	return traj, out, nil
}

func isNumerical(err error) bool {
	return errors.Is(err, ode.ErrNonFinite) ||
		errors.Is(err, ode.ErrStepSizeUnderflow) ||
		errors.Is(err, ode.ErrMaxSteps)
}

func fillNaN(traj model.Trajectory) {
	for _, series := range traj.States {
		for i := range series {
			series[i] = math.NaN()
		}
	}
}

// Grid returns t0, t0+step, ... up to and including tf. The last point is
// snapped to tf when accumulated rounding lands within step/1e6 of it.
func Grid(t0, tf, step float64) ([]float64, error) {
	if math.IsNaN(t0) || math.IsNaN(tf) || math.IsNaN(step) || math.IsInf(t0, 0) || math.IsInf(tf, 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("grid bounds must be finite")
	}
	if step <= 0 {
		return nil, fmt.Errorf("step size must be > 0")
	}
	if tf <= t0 {
		return nil, fmt.Errorf("final time must be > start time")
	}
	n := int(math.Floor((tf-t0)/step + 1e-9))
	grid := make([]float64, 0, n+2)
	for i := 0; i <= n; i++ {
		grid = append(grid, t0+float64(i)*step)
	}
	last := grid[len(grid)-1]
	switch {
	case math.Abs(last-tf) <= step*1e-6:
		grid[len(grid)-1] = tf
	case last < tf:
		grid = append(grid, tf)
	}
	return grid, nil
}
