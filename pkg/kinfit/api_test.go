package kinfit

import (
	"context"
	"errors"
	"math"
	"testing"

	"kinfit/internal/dataset"
	"kinfit/internal/evo"
	"kinfit/internal/fitness"
	"kinfit/internal/kinetics"
	"kinfit/internal/model"
	"kinfit/internal/tuning"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func monodDataset(t *testing.T, c *Client) model.Dataset {
	t.Helper()
	sim, err := c.Simulate(context.Background(), SimulateRequest{
		Model:  "monod",
		Params: map[string]float64{"mu": 0.5, "Yx": 0.5, "Yp": 0.3, "Ks": 2},
		X0:     0.1,
		S0:     10,
		P0:     0,
		TFinal: 10,
		Step:   0.5,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !sim.Outcome.Converged {
		t.Fatalf("reference simulation failed: %s", sim.Outcome.Reason)
	}
	traj := sim.Trajectory
	return model.Dataset{
		Time: traj.Time,
		X:    traj.Series(0),
		S:    traj.Series(1),
		P:    traj.Series(2),
	}
}

func TestSimulateBuildsGrid(t *testing.T) {
	c := newClient(t)
	data := monodDataset(t, c)
	if data.Len() != 21 || data.Time[0] != 0 || data.Time[20] != 10 {
		t.Fatalf("unexpected grid: %v", data.Time)
	}
	if data.X[0] != 0.1 || data.S[0] != 10 || data.P[0] != 0 {
		t.Fatalf("initial state not preserved")
	}
	for i := 1; i < data.Len(); i++ {
		if data.X[i] <= data.X[i-1] || data.S[i] >= data.S[i-1] {
			t.Fatalf("expected growth on substrate at point %d", i)
		}
		consumed := data.S[0] - data.S[i]
		if want := 0.5 * (data.X[i] - data.X[0]); math.Abs(consumed-want) > 1e-9 {
			t.Fatalf("yield relation broken at point %d: consumed=%g want=%g", i, consumed, want)
		}
	}
}

func TestSimulateRejectsInvalidRequests(t *testing.T) {
	c := newClient(t)
	base := SimulateRequest{
		Model:  "monod",
		Params: map[string]float64{"mu": 0.5, "Yx": 0.5, "Yp": 0.3, "Ks": 2},
		X0:     0.1,
		S0:     10,
		TFinal: 10,
		Step:   0.5,
	}
	tests := []struct {
		name   string
		mutate func(*SimulateRequest)
		want   error
	}{
		{name: "unknown model", mutate: func(r *SimulateRequest) { r.Model = "logistic" }, want: kinetics.ErrUnknownModel},
		{name: "missing param", mutate: func(r *SimulateRequest) { r.Params = map[string]float64{"mu": 0.5} }, want: ErrInvalidRequest},
		{name: "nan param", mutate: func(r *SimulateRequest) {
			r.Params = map[string]float64{"mu": math.NaN(), "Yx": 0.5, "Yp": 0.3, "Ks": 2}
		}, want: ErrInvalidRequest},
		{name: "zero final time", mutate: func(r *SimulateRequest) { r.TFinal = 0 }, want: ErrInvalidRequest},
		{name: "zero step", mutate: func(r *SimulateRequest) { r.Step = 0 }, want: ErrInvalidRequest},
		{name: "infinite initial", mutate: func(r *SimulateRequest) { r.S0 = math.Inf(1) }, want: ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			_, err := c.Simulate(context.Background(), req)
			if !errors.Is(err, tc.want) || !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected %v wrapped in ErrInvalidRequest, got %v", tc.want, err)
			}
		})
	}
}

func TestEstimateRecoversMonodParameters(t *testing.T) {
	c := newClient(t)
	data := monodDataset(t, c)

	cfg := evo.DefaultConfig()
	cfg.PopulationSize = 60
	cfg.MaxIterations = 80
	cfg.EliteRatio = 0.05
	cfg.Seed = 42
	cfg.Workers = 4
	summary, err := c.Estimate(context.Background(), EstimateRequest{
		Model:   "monod",
		Dataset: data,
		Bounds: map[string]model.Bound{
			"mu": {Min: 0, Max: 3},
			"Yx": {Min: 0, Max: 1},
			"Yp": {Min: 0, Max: 20},
			"Ks": {Min: 0, Max: 400},
		},
		GA:     &cfg,
		Refine: RefineOptions{Method: tuning.MethodSimplex, Attempts: 3},
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if summary.BestFitness >= 1e-3 {
		t.Fatalf("expected error < 1e-3, got %g (best=%v)", summary.BestFitness, summary.Best)
	}
	if summary.BestFitness > summary.GAFitness {
		t.Fatalf("refinement worsened the fit: ga=%g final=%g", summary.GAFitness, summary.BestFitness)
	}
	if got := fitness.Score(summary.Trajectory, data); math.Abs(got-summary.BestFitness) > 1e-12 {
		t.Fatalf("trajectory scores %g, summary reports %g", got, summary.BestFitness)
	}
	if math.Abs(summary.Best["Yx"]-0.5) > 0.05 {
		t.Fatalf("biomass yield not recovered: %v", summary.Best)
	}
	if summary.RunID == "" || summary.Config.GA.Seed != 42 || summary.Refinement == nil {
		t.Fatalf("summary metadata incomplete: %+v", summary.Config)
	}
	art := summary.Artifacts()
	if art.Result.Config.RunID != summary.RunID || len(art.BestByGeneration) != summary.Result.Generations+1 {
		t.Fatalf("artifacts inconsistent with summary")
	}
}

func TestEstimateDefaultsRecoverMonodParameters(t *testing.T) {
	c := newClient(t)
	data := monodDataset(t, c)

	cfg := evo.DefaultConfig()
	cfg.Seed = 42
	summary, err := c.Estimate(context.Background(), EstimateRequest{
		Model:   "monod",
		Dataset: data,
		GA:      &cfg,
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if summary.Refinement == nil || summary.Refinement.Method != tuning.MethodSimplex {
		t.Fatalf("default estimate did not refine: %+v", summary.Refinement)
	}
	if summary.Config.RefineAttempts != DefaultRefineAttempts || summary.Refinement.AttemptsExecuted != DefaultRefineAttempts {
		t.Fatalf("refine attempts=%d executed=%d want %d", summary.Config.RefineAttempts, summary.Refinement.AttemptsExecuted, DefaultRefineAttempts)
	}
	if summary.BestFitness >= 1e-3 {
		t.Fatalf("expected error < 1e-3 on the default path, got %g (ga=%g best=%v)", summary.BestFitness, summary.GAFitness, summary.Best)
	}
	if summary.BestFitness > summary.GAFitness {
		t.Fatalf("refinement worsened the fit: ga=%g final=%g", summary.GAFitness, summary.BestFitness)
	}
}

func TestEstimateInhibitionModel(t *testing.T) {
	c := newClient(t)
	sim, err := c.Simulate(context.Background(), SimulateRequest{
		Model:  "inhibition",
		Params: map[string]float64{"mu": 0.5, "Yx": 0.5, "Yp": 0.3, "Ks": 2, "Ki": 0.8},
		X0:     0.1,
		S0:     10,
		TFinal: 10,
		Step:   0.5,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	data := model.Dataset{
		Time: sim.Trajectory.Time,
		X:    sim.Trajectory.Series(0),
		S:    sim.Trajectory.Series(1),
		P:    sim.Trajectory.Series(2),
	}
	cfg := evo.DefaultConfig()
	cfg.MaxIterations = 5
	cfg.Seed = 4
	summary, err := c.Estimate(context.Background(), EstimateRequest{
		Model:   "inhibition",
		Dataset: data,
		Fixed:   map[string]float64{"Yx": 0.5},
		GA:      &cfg,
		Refine:  RefineOptions{Method: tuning.MethodHillClimb, Attempts: 20},
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if len(summary.Best) != 5 || len(summary.Result.Best) != 4 || summary.Best["Yx"] != 0.5 {
		t.Fatalf("unexpected inhibition parameters: %v", summary.Best)
	}
	if ki := summary.Best["Ki"]; ki < 0 || ki > 1 {
		t.Fatalf("Ki=%g outside default bound", ki)
	}
	if math.IsNaN(summary.BestFitness) || summary.BestFitness >= fitness.Penalty {
		t.Fatalf("expected a finite fit, got %g", summary.BestFitness)
	}
	if got := fitness.Score(summary.Trajectory, data); math.Abs(got-summary.BestFitness) > 1e-12 {
		t.Fatalf("trajectory scores %g, summary reports %g", got, summary.BestFitness)
	}
}

func TestEstimateWithFixedParameters(t *testing.T) {
	c := newClient(t)
	data := monodDataset(t, c)
	cfg := evo.DefaultConfig()
	cfg.MaxIterations = 5
	cfg.Seed = 9
	summary, err := c.Estimate(context.Background(), EstimateRequest{
		Model:   "monod",
		Dataset: data,
		Fixed:   map[string]float64{"Yx": 0.5, "yp": 0.3},
		GA:      &cfg,
		Refine:  RefineOptions{Skip: true},
	})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if summary.Best["Yx"] != 0.5 || summary.Best["Yp"] != 0.3 {
		t.Fatalf("fixed parameters not preserved: %v", summary.Best)
	}
	if len(summary.Result.Best) != 2 || len(summary.Config.Bounds) != 2 {
		t.Fatalf("expected two free parameters, got %v", summary.Result.Best)
	}
	if summary.Refinement != nil {
		t.Fatal("refinement ran although skipped")
	}
	if summary.Config.GA.Seed != 9 {
		t.Fatalf("seed not recorded: %d", summary.Config.GA.Seed)
	}
}

func TestEstimateRejectsInvalidRequestsBeforeOptimizing(t *testing.T) {
	c := newClient(t)
	data := monodDataset(t, c)
	tests := []struct {
		name   string
		mutate func(*EstimateRequest)
		want   error
	}{
		{name: "unknown model", mutate: func(r *EstimateRequest) { r.Model = "haldane" }, want: kinetics.ErrUnknownModel},
		{name: "unequal lengths", mutate: func(r *EstimateRequest) {
			r.Dataset.S = r.Dataset.S[:len(r.Dataset.S)-1]
		}, want: dataset.ErrInvalid},
		{name: "unknown fixed parameter", mutate: func(r *EstimateRequest) { r.Fixed = map[string]float64{"Ki": 1} }, want: ErrInvalidRequest},
		{name: "all fixed", mutate: func(r *EstimateRequest) {
			r.Fixed = map[string]float64{"mu": 0.5, "Yx": 0.5, "Yp": 0.3, "Ks": 2}
		}, want: ErrInvalidRequest},
		{name: "inverted bound", mutate: func(r *EstimateRequest) {
			r.Bounds = map[string]model.Bound{"mu": {Min: 3, Max: 0}}
		}, want: ErrInvalidRequest},
		{name: "bad ga config", mutate: func(r *EstimateRequest) {
			cfg := evo.DefaultConfig()
			cfg.PopulationSize = 1
			r.GA = &cfg
		}, want: ErrInvalidRequest},
		{name: "bad refine method", mutate: func(r *EstimateRequest) {
			r.Refine = RefineOptions{Method: "newton", Attempts: 1}
		}, want: ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := EstimateRequest{Model: "monod", Dataset: data}
			req.Dataset.S = append([]float64(nil), data.S...)
			tc.mutate(&req)
			_, err := c.Estimate(context.Background(), req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected %v to also match ErrInvalidRequest", err)
			}
		})
	}
}

func TestEstimateHonorsCanceledContext(t *testing.T) {
	c := newClient(t)
	data := monodDataset(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Estimate(ctx, EstimateRequest{Model: "monod", Dataset: data}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestModelsListsCatalog(t *testing.T) {
	items := newClient(t).Models(context.Background())
	if len(items) != 2 {
		t.Fatalf("expected 2 models, got %d", len(items))
	}
	if items[0].Kind != model.KindMonod || len(items[0].Params) != 4 || len(items[1].Params) != 5 {
		t.Fatalf("unexpected catalog: %+v", items)
	}
}
