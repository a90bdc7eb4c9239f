package evo

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
)

type CrossoverType string

const (
	CrossoverUniform  CrossoverType = "uniform"
	CrossoverOnePoint CrossoverType = "one_point"
	CrossoverTwoPoint CrossoverType = "two_point"
)

const (
	SelectionRoulette   = "roulette"
	SelectionTournament = "tournament"
)

// Config holds the hyperparameters of one optimization run.
type Config struct {
	PopulationSize int `json:"population_size" mapstructure:"population_size"`
	MaxIterations  int `json:"max_num_iteration" mapstructure:"max_num_iteration"`
	// MaxIterationsWithoutImprovement stops the run after that many consecutive
	// generations without a better best-seen fitness. Zero disables it.
	MaxIterationsWithoutImprovement int           `json:"max_iteration_without_improv" mapstructure:"max_iteration_without_improv"`
	MutationProbability             float64       `json:"mutation_probability" mapstructure:"mutation_probability"`
	CrossoverProbability            float64       `json:"crossover_probability" mapstructure:"crossover_probability"`
	CrossoverType                   CrossoverType `json:"crossover_type" mapstructure:"crossover_type"`
	EliteRatio                      float64       `json:"elit_ratio" mapstructure:"elit_ratio"`
	ParentsPortion                  float64       `json:"parents_portion" mapstructure:"parents_portion"`
	Selection                       string        `json:"selection" mapstructure:"selection"`
	TournamentSize                  int           `json:"tournament_size" mapstructure:"tournament_size"`
	Workers                         int           `json:"workers" mapstructure:"workers"`
	Seed                            int64         `json:"seed" mapstructure:"seed"`

	Logger *slog.Logger `json:"-" mapstructure:"-"`
}

// DefaultConfig mirrors the settings the estimation service has always used.
func DefaultConfig() Config {
	return Config{
		PopulationSize:       50,
		MaxIterations:        50,
		MutationProbability:  0.1,
		CrossoverProbability: 0.8,
		CrossoverType:        CrossoverOnePoint,
		EliteRatio:           0.01,
		ParentsPortion:       0.3,
		Selection:            SelectionRoulette,
		TournamentSize:       3,
		Workers:              runtime.NumCPU(),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("population size must be >= 2")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be > 0")
	}
	if c.MaxIterationsWithoutImprovement < 0 {
		return fmt.Errorf("max iterations without improvement must be >= 0")
	}
	if err := checkProbability("mutation probability", c.MutationProbability); err != nil {
		return err
	}
	if err := checkProbability("crossover probability", c.CrossoverProbability); err != nil {
		return err
	}
	if err := checkProbability("elite ratio", c.EliteRatio); err != nil {
		return err
	}
	if err := checkProbability("parents portion", c.ParentsPortion); err != nil {
		return err
	}
	switch c.CrossoverType {
	case CrossoverUniform, CrossoverOnePoint, CrossoverTwoPoint:
	default:
		return fmt.Errorf("unsupported crossover type: %q", c.CrossoverType)
	}
	switch c.Selection {
	case "", SelectionRoulette, SelectionTournament:
	default:
		return fmt.Errorf("unsupported selection: %q", c.Selection)
	}
	if c.TournamentSize < 0 {
		return fmt.Errorf("tournament size must be >= 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	return nil
}

// EliteCount is floor(EliteRatio*N), raised to 1 whenever the ratio is
// positive.
func (c Config) EliteCount() int {
	if c.EliteRatio <= 0 {
		return 0
	}
	n := int(math.Floor(c.EliteRatio * float64(c.PopulationSize)))
	if n < 1 {
		n = 1
	}
	if n > c.PopulationSize {
		n = c.PopulationSize
	}
	return n
}

// ParentCount is the size of the breeding pool.
func (c Config) ParentCount() int {
	n := int(math.Ceil(c.ParentsPortion * float64(c.PopulationSize)))
	if elites := c.EliteCount(); n < elites {
		n = elites
	}
	if n < 2 {
		n = 2
	}
	if n > c.PopulationSize {
		n = c.PopulationSize
	}
	return n
}

func checkProbability(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%s must be in [0, 1]", name)
	}
	return nil
}
