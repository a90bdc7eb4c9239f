package evo

import (
	"fmt"
	"math/rand"
)

// Selector picks one breeding parent from a population ranked best first.
// It returns the index into ranked.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []Scored) (int, error)
}

// RouletteSelector samples proportionally to how far an individual sits below
// the worst fitness in the population. Every individual keeps a small
// non-zero weight, and a population of equal fitness is sampled uniformly.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return SelectionRoulette
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []Scored) (int, error) {
	if rng == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return 0, fmt.Errorf("ranked population is empty")
	}
	best := ranked[0].Fitness
	worst := ranked[len(ranked)-1].Fitness
	spread := worst - best
	if !(spread > 0) {
		return rng.Intn(len(ranked)), nil
	}

	floor := 1.0 / float64(len(ranked))
	total := 0.0
	for _, item := range ranked {
		total += (worst-item.Fitness)/spread + floor
	}
	target := rng.Float64() * total
	acc := 0.0
	for i, item := range ranked {
		acc += (worst-item.Fitness)/spread + floor
		if target < acc {
			return i, nil
		}
	}
	return len(ranked) - 1, nil
}

// TournamentSelector samples TournamentSize individuals and keeps the fittest.
// Equal fitness resolves to the earlier rank.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return SelectionTournament
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []Scored) (int, error) {
	if rng == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return 0, fmt.Errorf("ranked population is empty")
	}
	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	best := rng.Intn(len(ranked))
	for i := 1; i < size; i++ {
		candidate := rng.Intn(len(ranked))
		if candidate < best {
			best = candidate
		}
	}
	return best, nil
}

func selectorFromConfig(cfg Config) Selector {
	switch cfg.Selection {
	case SelectionTournament:
		return TournamentSelector{TournamentSize: cfg.TournamentSize}
	default:
		return RouletteSelector{}
	}
}

// selectParents builds the breeding pool: the elites first, then selector
// picks until the pool holds count individuals.
func selectParents(rng *rand.Rand, selector Selector, ranked []Scored, eliteCount, count int) ([]int, error) {
	pool := make([]int, 0, count)
	for i := 0; i < eliteCount && i < len(ranked) && len(pool) < count; i++ {
		pool = append(pool, i)
	}
	for len(pool) < count {
		idx, err := selector.PickParent(rng, ranked)
		if err != nil {
			return nil, fmt.Errorf("select parent: %w", err)
		}
		pool = append(pool, idx)
	}
	return pool, nil
}
