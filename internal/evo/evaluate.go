package evo

import (
	"math"

	"github.com/sourcegraph/conc/pool"
)

// evaluatePopulation scores population[i] for every i in indices and returns
// the number of evaluations. Each job writes only its own slot, so results do
// not depend on the worker count.
func evaluatePopulation(population []Scored, indices []int, fitness FitnessFunc, workers int) int {
	if len(indices) == 0 {
		return 0
	}
	if workers <= 1 || len(indices) == 1 {
		for _, idx := range indices {
			population[idx].Fitness = sanitize(fitness(population[idx].Genes))
		}
		return len(indices)
	}

	if workers > len(indices) {
		workers = len(indices)
	}
	p := pool.New().WithMaxGoroutines(workers)
	for _, idx := range indices {
		p.Go(func() {
			population[idx].Fitness = sanitize(fitness(population[idx].Genes))
		})
	}
	p.Wait()
	return len(indices)
}

// sanitize keeps non-finite scores out of ranking arithmetic.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MaxFloat64
	}
	return v
}
