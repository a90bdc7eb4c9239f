package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"kinfit/internal/model"
)

// Exoself is an annealed hill climber. Each attempt perturbs a copy of the
// best vector Steps times, one random coordinate per step, and keeps it only
// when it beats the best by more than MinImprovement.
type Exoself struct {
	Rand     *rand.Rand
	Steps    int
	StepSize float64
	// PerturbationRange scales the step relative to each bound's width.
	PerturbationRange float64
	AnnealingFactor   float64
	MinImprovement    float64
}

func (e *Exoself) Name() string {
	return MethodHillClimb
}

func (e *Exoself) Tune(ctx context.Context, start []float64, bounds model.Bounds, attempts int, fitness FitnessFn) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if e == nil || e.Rand == nil {
		return Outcome{}, errors.New("random source is required")
	}
	if e.Steps <= 0 {
		return Outcome{}, errors.New("steps must be > 0")
	}
	if e.StepSize <= 0 {
		return Outcome{}, errors.New("step size must be > 0")
	}
	if e.PerturbationRange < 0 {
		return Outcome{}, errors.New("perturbation range must be >= 0")
	}
	if e.AnnealingFactor < 0 {
		return Outcome{}, errors.New("annealing factor must be >= 0")
	}
	if e.MinImprovement < 0 {
		return Outcome{}, errors.New("min improvement must be >= 0")
	}
	if err := validateInput(start, bounds, fitness); err != nil {
		return Outcome{}, err
	}
	perturbationRange := e.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1.0
	}
	annealingFactor := e.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}

	best := append([]float64(nil), start...)
	bestFitness := score(fitness, best)
	report := TuneReport{
		Method:               e.Name(),
		AttemptsPlanned:      max(attempts, 0),
		CandidateEvaluations: 1,
		StartFitness:         bestFitness,
	}
	if len(best) == 0 {
		report.FinalFitness = bestFitness
		return Outcome{Params: best, Fitness: bestFitness, Report: report}, nil
	}

	candidate := make([]float64, len(best))
	for a := 0; a < attempts; a++ {
		if err := ctx.Err(); err != nil {
			report.FinalFitness = bestFitness
			return Outcome{Params: best, Fitness: bestFitness, Report: report}, err
		}
		copy(candidate, best)
		e.perturb(candidate, bounds, perturbationRange, annealingFactor)
		f := score(fitness, candidate)
		report.AttemptsExecuted++
		report.CandidateEvaluations++
		if f < bestFitness-e.MinImprovement {
			copy(best, candidate)
			bestFitness = f
			report.AcceptedCandidates++
		} else {
			report.RejectedCandidates++
		}
	}

	report.FinalFitness = bestFitness
	return Outcome{Params: best, Fitness: bestFitness, Report: report}, nil
}

func (e *Exoself) perturb(candidate []float64, bounds model.Bounds, perturbationRange, annealingFactor float64) {
	for s := 0; s < e.Steps; s++ {
		idx := e.Rand.Intn(len(candidate))
		spread := e.StepSize * perturbationRange * bounds[idx].Width() * math.Pow(annealingFactor, float64(s))
		delta := (e.Rand.Float64()*2 - 1) * spread
		candidate[idx] = bounds[idx].Clamp(candidate[idx] + delta)
	}
}
