package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kinfit/internal/render"
	"kinfit/internal/stats"
	"kinfit/pkg/kinfit"
)

var simulateParamFlags = []string{"mu", "yx", "yp", "ks", "ki"}

func newSimulateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Integrate a kinetic model from t=0 and print the trajectory as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd, a)
		},
	}
	f := cmd.Flags()
	f.String("model", "monod", "kinetic model: monod|inhibition")
	f.Float64("mu", 0, "maximum specific growth rate")
	f.Float64("yx", 0, "substrate consumed per unit biomass")
	f.Float64("yp", 0, "product formed per unit biomass")
	f.Float64("ks", 0, "half-saturation constant")
	f.Float64("ki", 0, "substrate inhibition constant (inhibition model)")
	f.Float64("x0", 0, "initial biomass")
	f.Float64("s0", 0, "initial substrate")
	f.Float64("p0", 0, "initial product")
	f.Float64("tf", 0, "final time")
	f.Float64("step", 0, "output step")
	f.String("out", "", "trajectory CSV path (default stdout)")
	f.String("plot-dir", "", "write a PNG plot into this directory")
	a.bind("simulate", cmd)
	return cmd
}

func runSimulate(cmd *cobra.Command, a *app) error {
	v := a.v
	params := make(map[string]float64)
	for _, name := range simulateParamFlags {
		if v.IsSet("simulate." + name) {
			params[name] = v.GetFloat64("simulate." + name)
		}
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	summary, err := client.Simulate(cmd.Context(), kinfit.SimulateRequest{
		Model:  v.GetString("simulate.model"),
		Params: params,
		X0:     v.GetFloat64("simulate.x0"),
		S0:     v.GetFloat64("simulate.s0"),
		P0:     v.GetFloat64("simulate.p0"),
		TFinal: v.GetFloat64("simulate.tf"),
		Step:   v.GetFloat64("simulate.step"),
	})
	if err != nil {
		return err
	}

	out := a.stdout
	if path := v.GetString("simulate.out"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if err := stats.WriteTrajectoryCSV(out, summary.Trajectory); err != nil {
		return err
	}
	if dir := v.GetString("simulate.plot-dir"); dir != "" {
		path, err := render.WriteSimulationPlot(dir, summary.Trajectory)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stderr, "plot=%s\n", path)
	}
	return nil
}
