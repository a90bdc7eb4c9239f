package tuning

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"kinfit/internal/model"
)

const (
	defaultSimplexSize     = 0.05
	defaultSimplexEvals    = 2000
	defaultSimplexPatience = 100
)

// Simplex runs Nelder-Mead restarts from the best point found so far. The
// search happens in coordinates normalized to each bound's width, and every
// vertex is clamped back into the box before it is scored.
type Simplex struct {
	// SimplexSize is the initial vertex offset in normalized units. Each
	// restart halves it.
	SimplexSize float64
	// MaxEvaluations caps fitness calls per restart.
	MaxEvaluations int
	// Tolerance is the absolute fitness change below which a restart is
	// considered converged.
	Tolerance float64
}

func (s *Simplex) Name() string {
	return MethodSimplex
}

func (s *Simplex) Tune(ctx context.Context, start []float64, bounds model.Bounds, attempts int, fitness FitnessFn) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if err := validateInput(start, bounds, fitness); err != nil {
		return Outcome{}, err
	}
	size := s.SimplexSize
	if size <= 0 {
		size = defaultSimplexSize
	}
	maxEvals := s.MaxEvaluations
	if maxEvals <= 0 {
		maxEvals = defaultSimplexEvals
	}
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-14
	}

	dim := len(start)
	best := make([]float64, dim)
	clampInto(best, start, bounds)
	bestFitness := score(fitness, best)
	report := TuneReport{
		Method:               s.Name(),
		AttemptsPlanned:      max(attempts, 0),
		CandidateEvaluations: 1,
		StartFitness:         bestFitness,
	}
	done := func() Outcome {
		report.FinalFitness = bestFitness
		return Outcome{Params: best, Fitness: bestFitness, Report: report}
	}
	if dim == 0 {
		return done(), nil
	}

	point := make([]float64, dim)
	toPoint := func(u []float64) {
		for i, b := range bounds {
			point[i] = b.Min + math.Min(1, math.Max(0, u[i]))*b.Width()
		}
	}
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			toPoint(u)
			f := score(fitness, point)
			report.CandidateEvaluations++
			if f < bestFitness {
				copy(best, point)
				bestFitness = f
				report.AcceptedCandidates++
			} else {
				report.RejectedCandidates++
			}
			return f
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	for a := 0; a < attempts; a++ {
		if err := ctx.Err(); err != nil {
			return done(), err
		}
		u0 := make([]float64, dim)
		for i, b := range bounds {
			if w := b.Width(); w > 0 {
				u0[i] = (best[i] - b.Min) / w
			}
		}
		settings := &optimize.Settings{
			FuncEvaluations: maxEvals,
			Converger: &optimize.FunctionConverge{
				Absolute:   tol,
				Iterations: defaultSimplexPatience,
			},
		}
		method := &optimize.NelderMead{SimplexSize: size}
		result, err := optimize.Minimize(problem, u0, settings, method)
		report.AttemptsExecuted++
		if err := ctx.Err(); err != nil {
			return done(), err
		}
		if err != nil && result == nil {
			return done(), fmt.Errorf("simplex attempt %d: %w", a+1, err)
		}
		size /= 2
	}
	return done(), nil
}
