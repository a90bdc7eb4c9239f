package tuning

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"kinfit/internal/model"
)

// FitnessFn scores a full candidate vector; lower is better.
type FitnessFn func(params []float64) float64

type TuneReport struct {
	Method               string  `json:"method"`
	AttemptsPlanned      int     `json:"attempts_planned"`
	AttemptsExecuted     int     `json:"attempts_executed"`
	CandidateEvaluations int     `json:"candidate_evaluations"`
	AcceptedCandidates   int     `json:"accepted_candidates"`
	RejectedCandidates   int     `json:"rejected_candidates"`
	StartFitness         float64 `json:"start_fitness"`
	FinalFitness         float64 `json:"final_fitness"`
}

type Outcome struct {
	Params  []float64
	Fitness float64
	Report  TuneReport
}

// Tuner locally refines a candidate inside its bounds. A tuner never returns
// a result worse than its starting point.
type Tuner interface {
	Name() string
	Tune(ctx context.Context, start []float64, bounds model.Bounds, attempts int, fitness FitnessFn) (Outcome, error)
}

const (
	MethodHillClimb = "hillclimb"
	MethodSimplex   = "simplex"
)

// New returns the tuner registered under method, seeded where it draws
// random numbers.
func New(method string, seed int64) (Tuner, error) {
	switch method {
	case "", MethodSimplex:
		return &Simplex{}, nil
	case MethodHillClimb:
		return &Exoself{
			Rand:            rand.New(rand.NewSource(seed)),
			Steps:           4,
			StepSize:        0.05,
			AnnealingFactor: 0.9,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported tuning method: %q", method)
	}
}

func validateInput(start []float64, bounds model.Bounds, fitness FitnessFn) error {
	if fitness == nil {
		return fmt.Errorf("fitness function is required")
	}
	if len(start) != len(bounds) {
		return fmt.Errorf("start has %d values, bounds have %d", len(start), len(bounds))
	}
	for i, b := range bounds {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min > b.Max {
			return fmt.Errorf("invalid bound at index %d: [%g, %g]", i, b.Min, b.Max)
		}
	}
	return nil
}

func clampInto(dst, src []float64, bounds model.Bounds) {
	for i := range src {
		dst[i] = bounds[i].Clamp(src[i])
	}
}

// score maps non-finite fitness to +Inf so it never wins a comparison.
func score(fitness FitnessFn, params []float64) float64 {
	f := fitness(params)
	if math.IsNaN(f) {
		return math.Inf(1)
	}
	return f
}
