package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"kinfit/internal/dataset"
	"kinfit/internal/evo"
	"kinfit/internal/render"
	"kinfit/internal/stats"
	"kinfit/internal/tuning"
	"kinfit/pkg/kinfit"
)

func newEstimateCmd(a *app) *cobra.Command {
	defaults := evo.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Fit kinetic parameters to a t,x,s,p CSV dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEstimate(cmd, a)
		},
	}
	f := cmd.Flags()
	f.String("data", "", "dataset CSV with columns t,x,s,p")
	f.String("model", "monod", "kinetic model: monod|inhibition")
	f.StringArray("fix", nil, "fix a parameter, name=value (repeatable)")
	f.StringArray("bound", nil, "search interval, name=min:max (repeatable)")
	f.Int("population", defaults.PopulationSize, "population size")
	f.Int("generations", defaults.MaxIterations, "maximum number of generations")
	f.Int("stagnation", defaults.MaxIterationsWithoutImprovement, "stop after this many generations without improvement (0 disables)")
	f.Float64("mutation", defaults.MutationProbability, "per-gene mutation probability")
	f.Float64("crossover", defaults.CrossoverProbability, "crossover probability")
	f.String("crossover-type", string(defaults.CrossoverType), "crossover: uniform|one_point|two_point")
	f.Float64("elite", defaults.EliteRatio, "elite ratio")
	f.Float64("parents", defaults.ParentsPortion, "parents portion")
	f.String("selection", defaults.Selection, "parent selection: roulette|tournament")
	f.Int("workers", defaults.Workers, "parallel fitness evaluations")
	f.Int64("seed", 0, "random seed (0 picks one)")
	f.String("refine-method", tuning.MethodSimplex, "local refinement: simplex|hillclimb")
	f.Int("refine-attempts", kinfit.DefaultRefineAttempts, "local refinement attempts (0 disables)")
	f.String("out", "", "write run artifacts under this directory")
	f.String("plot-dir", "", "write a PNG plot into this directory")
	f.Bool("json", false, "emit the summary as JSON")
	a.bind("estimate", cmd)
	return cmd
}

func runEstimate(cmd *cobra.Command, a *app) error {
	v := a.v
	path := v.GetString("estimate.data")
	if path == "" {
		return fmt.Errorf("--data is required")
	}
	data, err := dataset.LoadFile(path)
	if err != nil {
		return err
	}
	fixed, err := parseAssignments(v.GetStringSlice("estimate.fix"))
	if err != nil {
		return err
	}
	bounds, err := parseBounds(v.GetStringSlice("estimate.bound"))
	if err != nil {
		return err
	}
	cfg, err := gaConfig(a)
	if err != nil {
		return err
	}

	refineAttempts := v.GetInt("estimate.refine-attempts")

	client, err := a.client()
	if err != nil {
		return err
	}
	summary, err := client.Estimate(cmd.Context(), kinfit.EstimateRequest{
		Model:   v.GetString("estimate.model"),
		Dataset: data,
		Fixed:   fixed,
		Bounds:  bounds,
		GA:      &cfg,
		Refine: kinfit.RefineOptions{
			Method:   v.GetString("estimate.refine-method"),
			Attempts: refineAttempts,
			Skip:     refineAttempts == 0,
		},
	})
	if err != nil {
		return err
	}

	if dir := v.GetString("estimate.out"); dir != "" {
		runDir, err := stats.WriteRunArtifacts(dir, summary.Artifacts())
		if err != nil {
			return err
		}
		if err := stats.AppendRunIndex(dir, summary.IndexEntry()); err != nil {
			return err
		}
		a.logger.Info("artifacts written", "dir", runDir)
	}
	if dir := v.GetString("estimate.plot-dir"); dir != "" {
		plot, err := render.WriteEstimatePlot(dir, data, summary.Trajectory)
		if err != nil {
			return err
		}
		a.logger.Info("plot written", "path", plot)
	}

	if v.GetBool("estimate.json") {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary.Artifacts().Result)
	}
	var order []string
	for _, item := range client.Models(cmd.Context()) {
		if item.Kind == summary.Model {
			order = item.Params
		}
	}
	fmt.Fprintf(a.stdout, "run_id=%s model=%s %s\n", summary.RunID, summary.Model, formatParams(summary.Best, order))
	fmt.Fprintf(a.stdout, "best_fitness=%.6g ga_fitness=%.6g generations=%d evaluations=%d stop_reason=%s seed=%d\n",
		summary.BestFitness,
		summary.GAFitness,
		summary.Result.Generations,
		summary.Result.Evaluations,
		summary.Result.StopReason,
		summary.Config.GA.Seed,
	)
	return nil
}

// gaConfig layers the ga section of the config file over the defaults, then
// applies any explicitly set estimate flag or KINFIT_ESTIMATE_* variable.
func gaConfig(a *app) (evo.Config, error) {
	v := a.v
	cfg := evo.DefaultConfig()
	if v.IsSet("ga") {
		if err := v.UnmarshalKey("ga", &cfg); err != nil {
			return evo.Config{}, fmt.Errorf("decode ga config: %w", err)
		}
	}
	if v.IsSet("estimate.population") {
		cfg.PopulationSize = v.GetInt("estimate.population")
	}
	if v.IsSet("estimate.generations") {
		cfg.MaxIterations = v.GetInt("estimate.generations")
	}
	if v.IsSet("estimate.stagnation") {
		cfg.MaxIterationsWithoutImprovement = v.GetInt("estimate.stagnation")
	}
	if v.IsSet("estimate.mutation") {
		cfg.MutationProbability = v.GetFloat64("estimate.mutation")
	}
	if v.IsSet("estimate.crossover") {
		cfg.CrossoverProbability = v.GetFloat64("estimate.crossover")
	}
	if v.IsSet("estimate.crossover-type") {
		cfg.CrossoverType = evo.CrossoverType(v.GetString("estimate.crossover-type"))
	}
	if v.IsSet("estimate.elite") {
		cfg.EliteRatio = v.GetFloat64("estimate.elite")
	}
	if v.IsSet("estimate.parents") {
		cfg.ParentsPortion = v.GetFloat64("estimate.parents")
	}
	if v.IsSet("estimate.selection") {
		cfg.Selection = v.GetString("estimate.selection")
	}
	if v.IsSet("estimate.workers") {
		cfg.Workers = v.GetInt("estimate.workers")
	}
	if v.IsSet("estimate.seed") {
		cfg.Seed = v.GetInt64("estimate.seed")
	}
	cfg.Logger = a.logger
	return cfg, nil
}
