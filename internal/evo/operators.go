package evo

import (
	"math/rand"

	"kinfit/internal/model"
)

// crossover writes two offspring of a and b into c1 and c2 using the given
// scheme. All slices share one length.
func crossover(rng *rand.Rand, kind CrossoverType, a, b, c1, c2 []float64) {
	copy(c1, a)
	copy(c2, b)
	dim := len(a)
	if dim < 2 {
		if kind == CrossoverUniform && dim == 1 && rng.Float64() < 0.5 {
			c1[0], c2[0] = b[0], a[0]
		}
		return
	}

	switch kind {
	case CrossoverUniform:
		for i := 0; i < dim; i++ {
			if rng.Float64() < 0.5 {
				c1[i], c2[i] = b[i], a[i]
			}
		}
	case CrossoverTwoPoint:
		lo := rng.Intn(dim)
		hi := lo + rng.Intn(dim-lo+1)
		for i := lo; i < hi; i++ {
			c1[i], c2[i] = b[i], a[i]
		}
	default:
		cut := 1 + rng.Intn(dim-1)
		for i := 0; i < cut; i++ {
			c1[i], c2[i] = b[i], a[i]
		}
	}
}

// mutate resamples each gene uniformly within its bound with probability p.
// It reports whether any gene changed.
func mutate(rng *rand.Rand, p float64, genes []float64, bounds model.Bounds) bool {
	changed := false
	for i := range genes {
		if rng.Float64() < p {
			genes[i] = sampleIn(rng, bounds[i])
			changed = true
		}
	}
	return changed
}

func sampleIn(rng *rand.Rand, b model.Bound) float64 {
	return b.Min + rng.Float64()*b.Width()
}

func randomGenes(rng *rand.Rand, bounds model.Bounds) []float64 {
	genes := make([]float64, len(bounds))
	for i, b := range bounds {
		genes[i] = sampleIn(rng, b)
	}
	return genes
}
