package evo

import (
	"gonum.org/v1/gonum/stat"

	"kinfit/internal/fitness"
)

// penalizedThreshold marks scores that come from diverged candidates rather
// than from a fit.
const penalizedThreshold = fitness.Penalty

type GenerationDiagnostics struct {
	Generation     int     `json:"generation"`
	BestSeen       float64 `json:"best_seen"`
	BestFitness    float64 `json:"best_fitness"`
	MeanFitness    float64 `json:"mean_fitness"`
	StdDevFitness  float64 `json:"stddev_fitness"`
	WorstFitness   float64 `json:"worst_fitness"`
	Penalized      int     `json:"penalized"`
	GeneDiversity  float64 `json:"gene_diversity"`
	PopulationSize int     `json:"population_size"`
}

// summarizeGeneration expects a ranked population. Mean and spread are taken
// over non-penalized individuals so a few diverged candidates do not swamp
// them.
func summarizeGeneration(ranked []Scored, generation int, bestSeen float64) GenerationDiagnostics {
	diag := GenerationDiagnostics{
		Generation:     generation,
		BestSeen:       bestSeen,
		PopulationSize: len(ranked),
	}
	if len(ranked) == 0 {
		return diag
	}
	diag.BestFitness = ranked[0].Fitness
	diag.WorstFitness = ranked[len(ranked)-1].Fitness

	values := make([]float64, 0, len(ranked))
	for _, item := range ranked {
		if item.Fitness >= penalizedThreshold {
			diag.Penalized++
			continue
		}
		values = append(values, item.Fitness)
	}
	if len(values) > 0 {
		diag.MeanFitness, diag.StdDevFitness = stat.MeanStdDev(values, nil)
		if len(values) == 1 {
			diag.StdDevFitness = 0
		}
	}
	diag.GeneDiversity = geneDiversity(ranked)
	return diag
}

// geneDiversity averages the per-gene standard deviation across the
// population.
func geneDiversity(population []Scored) float64 {
	dim := len(population[0].Genes)
	if dim == 0 || len(population) < 2 {
		return 0
	}
	column := make([]float64, len(population))
	total := 0.0
	for g := 0; g < dim; g++ {
		for i := range population {
			column[i] = population[i].Genes[g]
		}
		total += stat.StdDev(column, nil)
	}
	return total / float64(dim)
}
