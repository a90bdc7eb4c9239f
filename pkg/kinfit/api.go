package kinfit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"kinfit/internal/dataset"
	"kinfit/internal/evo"
	"kinfit/internal/fitness"
	"kinfit/internal/kinetics"
	"kinfit/internal/logging"
	"kinfit/internal/model"
	"kinfit/internal/ode"
	"kinfit/internal/simulation"
	"kinfit/internal/stats"
	"kinfit/internal/tuning"
)

// ErrInvalidRequest marks requests rejected before any computation.
var ErrInvalidRequest = errors.New("invalid request")

type Options struct {
	Logger *slog.Logger
	// Solver overrides the integration settings; zero fields take defaults.
	Solver ode.Options
}

type Client struct {
	logger *slog.Logger
	solver ode.Options
}

// DefaultRefineAttempts is the number of refinement restarts used when
// RefineOptions.Attempts is zero.
const DefaultRefineAttempts = 5

// RefineOptions controls the local search that polishes the GA best. The GA
// alone rarely resolves mu and Ks, which trade off against each other, so
// refinement runs unless Skip is set.
type RefineOptions struct {
	Method   string
	Attempts int
	Skip     bool
}

type EstimateRequest struct {
	Model   string
	Dataset model.Dataset
	Fixed   map[string]float64
	// Bounds overrides the default search interval per free parameter.
	Bounds map[string]model.Bound
	GA     *evo.Config
	Refine RefineOptions
}

type EstimateSummary struct {
	RunID        string
	Model        model.Kind
	Best         map[string]float64
	BestVector   []float64
	BestFitness  float64
	GAFitness    float64
	Trajectory   model.Trajectory
	Outcome      simulation.Outcome
	Result       evo.Result
	Refinement   *tuning.TuneReport
	Config       stats.RunConfig
	CreatedAtUTC string
}

type SimulateRequest struct {
	Model  string
	Params map[string]float64
	X0     float64
	S0     float64
	P0     float64
	TFinal float64
	Step   float64
}

type SimulateSummary struct {
	Model      model.Kind
	Params     map[string]float64
	Trajectory model.Trajectory
	Outcome    simulation.Outcome
}

type ModelItem struct {
	Kind   model.Kind   `json:"kind"`
	Params []string     `json:"params"`
	Bounds model.Bounds `json:"bounds"`
}

func New(opts Options) (*Client, error) {
	solver := opts.Solver
	if solver == (ode.Options{}) {
		solver = ode.DefaultOptions()
	}
	if solver.RelTol < 0 || solver.AbsTol < 0 || solver.MaxSteps < 0 {
		return nil, fmt.Errorf("solver tolerances and max steps must be >= 0")
	}
	return &Client{
		logger: logging.OrDiscard(opts.Logger),
		solver: solver,
	}, nil
}

// Models lists the catalog with each model's canonical parameter order.
func (c *Client) Models(_ context.Context) []ModelItem {
	kinds := kinetics.Kinds()
	out := make([]ModelItem, 0, len(kinds))
	for _, kind := range kinds {
		m, err := kinetics.Lookup(kind)
		if err != nil {
			continue
		}
		params := m.Params()
		names := make([]string, len(params))
		for i, p := range params {
			names[i] = string(p)
		}
		out = append(out, ModelItem{Kind: kind, Params: names, Bounds: kinetics.DefaultBounds(m)})
	}
	return out
}

// Estimate fits the free parameters of the requested model to the dataset.
// Every input is validated before the optimizer starts.
func (c *Client) Estimate(ctx context.Context, req EstimateRequest) (EstimateSummary, error) {
	m, err := kinetics.ParseKind(req.Model)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := dataset.Validate(req.Dataset); err != nil {
		return EstimateSummary{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	layout, err := kinetics.NewLayout(m, req.Fixed)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if layout.Dim() == 0 {
		return EstimateSummary{}, fmt.Errorf("%w: at least one parameter must be left free", ErrInvalidRequest)
	}
	bounds, err := layout.Bounds(req.Bounds)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cfg := evo.DefaultConfig()
	if req.GA != nil {
		cfg = *req.GA
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger
	}
	optimizer, err := evo.NewOptimizer(cfg)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Refine.Attempts < 0 {
		return EstimateSummary{}, fmt.Errorf("%w: refine attempts must be >= 0", ErrInvalidRequest)
	}
	attempts := req.Refine.Attempts
	if attempts == 0 {
		attempts = DefaultRefineAttempts
	}
	var tuner tuning.Tuner
	if !req.Refine.Skip {
		tuner, err = tuning.New(req.Refine.Method, cfg.Seed+1)
		if err != nil {
			return EstimateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	evaluator, err := fitness.NewEvaluator(layout, req.Dataset, c.solver)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	objective := evaluator.Func()

	now := time.Now().UTC()
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID, "model", string(m.Kind()))
	logger.Info("estimation started",
		"free", len(layout.Free()),
		"points", req.Dataset.Len(),
		"population", cfg.PopulationSize,
		"max_iterations", cfg.MaxIterations,
		"seed", cfg.Seed,
	)

	result, err := optimizer.Run(ctx, objective, bounds)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("optimize: %w", err)
	}
	best := append([]float64(nil), result.Best...)
	bestFitness := result.BestFitness

	var report *tuning.TuneReport
	if tuner != nil {
		out, err := tuner.Tune(ctx, best, bounds, attempts, objective)
		if err != nil {
			return EstimateSummary{}, fmt.Errorf("refine: %w", err)
		}
		report = &out.Report
		if out.Fitness < bestFitness {
			best = out.Params
			bestFitness = out.Fitness
		}
		logger.Info("refinement finished",
			"method", out.Report.Method,
			"start_fitness", out.Report.StartFitness,
			"final_fitness", bestFitness,
			"evaluations", out.Report.CandidateEvaluations,
		)
	}

	full, err := layout.Assemble(best)
	if err != nil {
		return EstimateSummary{}, err
	}
	traj, outcome, err := simulation.Simulate(m, req.Dataset.InitialState(), req.Dataset.Time, full, c.solver)
	if err != nil {
		return EstimateSummary{}, fmt.Errorf("simulate best: %w", err)
	}
	logger.Info("estimation finished",
		"best_fitness", bestFitness,
		"stop_reason", string(result.StopReason),
		"converged", outcome.Converged,
	)

	return EstimateSummary{
		RunID:       runID,
		Model:       m.Kind(),
		Best:        layout.Named(full),
		BestVector:  full,
		BestFitness: bestFitness,
		GAFitness:   result.BestFitness,
		Trajectory:  traj,
		Outcome:     outcome,
		Result:      result,
		Refinement:  report,
		Config: stats.RunConfig{
			RunID:          runID,
			Model:          m.Kind(),
			DatasetPoints:  req.Dataset.Len(),
			Fixed:          copyNamed(req.Fixed),
			Bounds:         namedBounds(layout, bounds),
			GA:             cfg,
			RefineMethod:   refineMethod(tuner),
			RefineAttempts: refineAttempts(tuner, attempts),
		},
		CreatedAtUTC: now.Format(time.RFC3339),
	}, nil
}

// Simulate integrates the model from t=0 to TFinal and samples it every Step.
func (c *Client) Simulate(_ context.Context, req SimulateRequest) (SimulateSummary, error) {
	m, err := kinetics.ParseKind(req.Model)
	if err != nil {
		return SimulateSummary{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	params, err := kinetics.Vector(m, req.Params)
	if err != nil {
		return SimulateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for i, v := range params {
		if !finite(v) {
			return SimulateSummary{}, fmt.Errorf("%w: parameter %s must be finite", ErrInvalidRequest, m.Params()[i])
		}
	}
	y0 := []float64{req.X0, req.S0, req.P0}
	for i, v := range y0 {
		if !finite(v) {
			return SimulateSummary{}, fmt.Errorf("%w: initial %s must be finite", ErrInvalidRequest, model.StateNames[i])
		}
	}
	if !(req.TFinal > 0) {
		return SimulateSummary{}, fmt.Errorf("%w: final time must be > 0", ErrInvalidRequest)
	}
	if !(req.Step > 0) {
		return SimulateSummary{}, fmt.Errorf("%w: step must be > 0", ErrInvalidRequest)
	}
	times, err := simulation.Grid(0, req.TFinal, req.Step)
	if err != nil {
		return SimulateSummary{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	traj, outcome, err := simulation.Simulate(m, y0, times, params, c.solver)
	if err != nil {
		return SimulateSummary{}, err
	}
	if !outcome.Converged {
		c.logger.Warn("simulation did not converge", "model", string(m.Kind()), "reason", outcome.Reason)
	}
	named := make(map[string]float64, len(params))
	for i, p := range m.Params() {
		named[string(p)] = params[i]
	}
	return SimulateSummary{
		Model:      m.Kind(),
		Params:     named,
		Trajectory: traj,
		Outcome:    outcome,
	}, nil
}

// Artifacts packages the summary for stats.WriteRunArtifacts.
func (s EstimateSummary) Artifacts() stats.RunArtifacts {
	return stats.RunArtifacts{
		Result: stats.RunResult{
			Config:       s.Config,
			Best:         s.Best,
			BestVector:   s.BestVector,
			BestFitness:  s.BestFitness,
			GAFitness:    s.GAFitness,
			StopReason:   s.Result.StopReason,
			Generations:  s.Result.Generations,
			Evaluations:  s.Result.Evaluations,
			Refinement:   s.Refinement,
			CreatedAtUTC: s.CreatedAtUTC,
		},
		BestByGeneration:      s.Result.BestByGeneration,
		GenerationDiagnostics: s.Result.GenerationDiagnostics,
		Trajectory:            s.Trajectory,
	}
}

// IndexEntry summarizes the run for stats.AppendRunIndex.
func (s EstimateSummary) IndexEntry() stats.RunIndexEntry {
	return stats.RunIndexEntry{
		RunID:          s.RunID,
		Model:          s.Model,
		PopulationSize: s.Config.GA.PopulationSize,
		Generations:    s.Result.Generations,
		Seed:           s.Config.GA.Seed,
		BestFitness:    s.BestFitness,
		StopReason:     string(s.Result.StopReason),
		CreatedAtUTC:   s.CreatedAtUTC,
	}
}

func namedBounds(layout kinetics.Layout, bounds model.Bounds) map[string]model.Bound {
	out := make(map[string]model.Bound, len(bounds))
	for i, p := range layout.Free() {
		out[string(p)] = bounds[i]
	}
	return out
}

func copyNamed(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func refineMethod(t tuning.Tuner) string {
	if t == nil {
		return ""
	}
	return t.Name()
}

func refineAttempts(t tuning.Tuner, attempts int) int {
	if t == nil {
		return 0
	}
	return attempts
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
