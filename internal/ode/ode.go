// Package ode integrates initial value problems with an adaptive
// Dormand-Prince 5(4) Runge-Kutta scheme and reports the solution at caller
// supplied output times through the method's continuous extension.
package ode

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNonFinite         = errors.New("non-finite state")
	ErrStepSizeUnderflow = errors.New("step size underflow")
	ErrMaxSteps          = errors.New("maximum number of steps exceeded")
)

// Func evaluates dy/dt at (t, y) into dy. It must not retain y or dy.
type Func func(t float64, y, dy []float64)

const (
	DefaultRelTol   = 1e-3
	DefaultAbsTol   = 1e-6
	DefaultMaxSteps = 100000
)

type Options struct {
	RelTol float64
	AbsTol float64
	// MaxSteps bounds accepted plus rejected steps.
	MaxSteps int
	// FirstStep overrides the automatic initial step when > 0.
	FirstStep float64
	// MaxStep caps the step size when > 0.
	MaxStep float64
}

func DefaultOptions() Options {
	return Options{
		RelTol:   DefaultRelTol,
		AbsTol:   DefaultAbsTol,
		MaxSteps: DefaultMaxSteps,
	}
}

func (o Options) normalized() (Options, error) {
	if o.RelTol == 0 {
		o.RelTol = DefaultRelTol
	}
	if o.AbsTol == 0 {
		o.AbsTol = DefaultAbsTol
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.RelTol < 0 || o.AbsTol < 0 {
		return Options{}, fmt.Errorf("tolerances must be >= 0")
	}
	if o.RelTol < 100*epsilon {
		o.RelTol = 100 * epsilon
	}
	if o.MaxSteps < 0 {
		return Options{}, fmt.Errorf("max steps must be > 0")
	}
	if o.FirstStep < 0 || o.MaxStep < 0 {
		return Options{}, fmt.Errorf("step sizes must be >= 0")
	}
	return o, nil
}

type Stats struct {
	Steps       int `json:"steps"`
	Rejected    int `json:"rejected"`
	Evaluations int `json:"evaluations"`
}

type Result struct {
	// Y[i][k] is state component i at output time k. Output times that were
	// not reached hold NaN.
	Y [][]float64
	// Reached counts output times with a computed value.
	Reached int
	Stats   Stats

	buf []float64
}

// Solve integrates f from times[0] to times[len(times)-1] starting at y0 and
// returns the state at every output time in order. times must be
// non-decreasing. On a numerical failure the partial result is returned
// together with the error.
func Solve(f Func, y0, times []float64, opts Options) (Result, error) {
	if f == nil {
		return Result{}, fmt.Errorf("derivative function is required")
	}
	if len(y0) == 0 {
		return Result{}, fmt.Errorf("initial state is required")
	}
	if len(times) == 0 {
		return Result{}, fmt.Errorf("output times are required")
	}
	for i, t := range times {
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Result{}, fmt.Errorf("output time %d is not finite", i)
		}
		if i > 0 && t < times[i-1] {
			return Result{}, fmt.Errorf("output times must be non-decreasing at index %d", i)
		}
	}
	opts, err := opts.normalized()
	if err != nil {
		return Result{}, err
	}

	res := Result{Y: make([][]float64, len(y0))}
	for i := range res.Y {
		res.Y[i] = make([]float64, len(times))
		for k := range res.Y[i] {
			res.Y[i][k] = math.NaN()
		}
	}
	for _, v := range y0 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return res, fmt.Errorf("initial state: %w", ErrNonFinite)
		}
	}

	s := newStepper(f, y0, times[0], opts)
	next := 0
	for next < len(times) && times[next] == times[0] {
		res.store(next, s.y)
		next++
	}
	if next == len(times) {
		return res, nil
	}

	tEnd := times[len(times)-1]
	if err := s.start(tEnd); err != nil {
		res.Stats = s.stats
		return res, err
	}
	for next < len(times) {
		if err := s.step(tEnd); err != nil {
			res.Stats = s.stats
			return res, fmt.Errorf("t=%g: %w", s.t, err)
		}
		for next < len(times) && times[next] <= s.t {
			if times[next] == s.t {
				res.store(next, s.y)
			} else {
				s.interpolate(times[next], res.scratch(len(y0)))
				res.store(next, res.buf)
			}
			next++
		}
	}
	res.Stats = s.stats
	return res, nil
}

func (r *Result) store(k int, y []float64) {
	for i := range r.Y {
		r.Y[i][k] = y[i]
	}
	r.Reached = k + 1
}

func (r *Result) scratch(n int) []float64 {
	if len(r.buf) != n {
		r.buf = make([]float64, n)
	}
	return r.buf
}
