package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"

	"kinfit/internal/logging"
	"kinfit/internal/model"
)

// FitnessFunc scores a candidate; lower is better. It must be safe for
// concurrent use.
type FitnessFunc func(genes []float64) float64

type Scored struct {
	Genes   []float64 `json:"genes"`
	Fitness float64   `json:"fitness"`
	// Order is the position the individual was inserted at in its generation
	// and breaks fitness ties during ranking.
	Order int `json:"order"`
}

type StopReason string

const (
	StopMaxIterations StopReason = "max_iterations"
	StopStagnation    StopReason = "stagnation"
	StopCanceled      StopReason = "canceled"
)

type Result struct {
	Best        []float64 `json:"best"`
	BestFitness float64   `json:"best_fitness"`
	// BestByGeneration[g] is the best fitness seen up to generation g; entry
	// 0 is the initial population.
	BestByGeneration      []float64               `json:"best_by_generation"`
	GenerationDiagnostics []GenerationDiagnostics `json:"generation_diagnostics"`
	FinalPopulation       []Scored                `json:"final_population,omitempty"`
	Generations           int                     `json:"generations"`
	Evaluations           int                     `json:"evaluations"`
	StopReason            StopReason              `json:"stop_reason"`
}

type Optimizer struct {
	cfg      Config
	selector Selector
	logger   *slog.Logger
}

func NewOptimizer(cfg Config) (*Optimizer, error) {
	if cfg.Selection == "" {
		cfg.Selection = SelectionRoulette
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Optimizer{
		cfg:      cfg,
		selector: selectorFromConfig(cfg),
		logger:   logging.OrDiscard(cfg.Logger),
	}, nil
}

// Run minimizes fitness over the box bounds. The returned best is the best
// individual seen in any generation. Cancellation is honored between
// generations; the partial result is returned with the context error.
func (o *Optimizer) Run(ctx context.Context, fitness FitnessFunc, bounds model.Bounds) (Result, error) {
	if fitness == nil {
		return Result{}, fmt.Errorf("fitness function is required")
	}
	if len(bounds) == 0 {
		return Result{}, fmt.Errorf("at least one bounded dimension is required")
	}
	for i, b := range bounds {
		if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) || b.Min > b.Max {
			return Result{}, fmt.Errorf("invalid bound at index %d: [%g, %g]", i, b.Min, b.Max)
		}
	}

	cfg := o.cfg
	rng := rand.New(rand.NewSource(cfg.Seed))
	n := cfg.PopulationSize
	eliteCount := cfg.EliteCount()
	parentCount := cfg.ParentCount()

	population := make([]Scored, n)
	for i := range population {
		population[i] = Scored{Genes: randomGenes(rng, bounds), Order: i}
	}
	if err := ctx.Err(); err != nil {
		return Result{StopReason: StopCanceled}, err
	}
	evaluated := evaluatePopulation(population, allIndices(n), fitness, cfg.Workers)
	rank(population)

	res := Result{
		BestByGeneration:      make([]float64, 0, cfg.MaxIterations+1),
		GenerationDiagnostics: make([]GenerationDiagnostics, 0, cfg.MaxIterations+1),
		Evaluations:           evaluated,
		StopReason:            StopMaxIterations,
	}
	best := cloneScored(population[0])
	res.BestByGeneration = append(res.BestByGeneration, best.Fitness)
	res.GenerationDiagnostics = append(res.GenerationDiagnostics, summarizeGeneration(population, 0, best.Fitness))

	stagnant := 0
	for gen := 1; gen <= cfg.MaxIterations; gen++ {
		if err := ctx.Err(); err != nil {
			res.StopReason = StopCanceled
			o.finish(&res, best, population)
			return res, err
		}

		next, fresh, err := o.breed(rng, population, bounds, eliteCount, parentCount)
		if err != nil {
			return Result{}, err
		}
		res.Evaluations += evaluatePopulation(next, fresh, fitness, cfg.Workers)
		rank(next)
		population = next
		res.Generations = gen

		if population[0].Fitness < best.Fitness {
			best = cloneScored(population[0])
			stagnant = 0
		} else {
			stagnant++
		}
		res.BestByGeneration = append(res.BestByGeneration, best.Fitness)
		diag := summarizeGeneration(population, gen, best.Fitness)
		res.GenerationDiagnostics = append(res.GenerationDiagnostics, diag)
		o.logger.Debug("generation complete",
			"generation", gen,
			"best_seen", best.Fitness,
			"generation_best", diag.BestFitness,
			"mean", diag.MeanFitness,
			"penalized", diag.Penalized,
		)

		if cfg.MaxIterationsWithoutImprovement > 0 && stagnant >= cfg.MaxIterationsWithoutImprovement {
			res.StopReason = StopStagnation
			break
		}
	}

	o.finish(&res, best, population)
	o.logger.Info("optimization finished",
		"generations", res.Generations,
		"evaluations", res.Evaluations,
		"best_fitness", res.BestFitness,
		"stop_reason", string(res.StopReason),
	)
	return res, nil
}

func (o *Optimizer) finish(res *Result, best Scored, population []Scored) {
	res.Best = append([]float64(nil), best.Genes...)
	res.BestFitness = best.Fitness
	res.FinalPopulation = make([]Scored, len(population))
	for i := range population {
		res.FinalPopulation[i] = cloneScored(population[i])
	}
}

// breed produces the next generation from a ranked population. Elites keep
// their fitness; fresh lists the indices that still need evaluation.
func (o *Optimizer) breed(rng *rand.Rand, ranked []Scored, bounds model.Bounds, eliteCount, parentCount int) ([]Scored, []int, error) {
	cfg := o.cfg
	n := len(ranked)
	dim := len(bounds)

	parents, err := selectParents(rng, o.selector, ranked, eliteCount, parentCount)
	if err != nil {
		return nil, nil, err
	}

	next := make([]Scored, 0, n)
	for i := 0; i < eliteCount; i++ {
		elite := cloneScored(ranked[i])
		elite.Order = len(next)
		next = append(next, elite)
	}

	fresh := make([]int, 0, n-eliteCount)
	for len(next) < n {
		a := ranked[parents[rng.Intn(len(parents))]].Genes
		b := ranked[parents[rng.Intn(len(parents))]].Genes
		c1 := make([]float64, dim)
		c2 := make([]float64, dim)
		if rng.Float64() < cfg.CrossoverProbability {
			crossover(rng, cfg.CrossoverType, a, b, c1, c2)
		} else {
			copy(c1, a)
			copy(c2, b)
		}
		mutate(rng, cfg.MutationProbability, c1, bounds)
		mutate(rng, cfg.MutationProbability, c2, bounds)

		for _, child := range [][]float64{c1, c2} {
			if len(next) == n {
				break
			}
			fresh = append(fresh, len(next))
			next = append(next, Scored{Genes: child, Order: len(next)})
		}
	}
	return next, fresh, nil
}

// rank sorts ascending by fitness; equal fitness keeps insertion order.
func rank(population []Scored) {
	sort.SliceStable(population, func(i, j int) bool {
		if population[i].Fitness != population[j].Fitness {
			return population[i].Fitness < population[j].Fitness
		}
		return population[i].Order < population[j].Order
	})
}

func cloneScored(s Scored) Scored {
	out := s
	out.Genes = append([]float64(nil), s.Genes...)
	return out
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
