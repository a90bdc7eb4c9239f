package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"kinfit/internal/stats"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List estimation runs recorded in an artifacts directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := a.v
			limit := v.GetInt("runs.limit")
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			tail := v.GetInt("runs.tail")
			if tail < 0 {
				return errors.New("tail must be >= 0")
			}
			dir := v.GetString("runs.dir")
			entries, err := stats.ListRunIndex(dir)
			if err != nil {
				return err
			}
			if len(entries) > limit {
				entries = entries[:limit]
			}
			if v.GetBool("runs.json") {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			histories := make([][]float64, len(entries))
			if tail > 0 {
				for i, e := range entries {
					history, ok, err := stats.ReadFitnessHistory(dir, e.RunID)
					if err != nil {
						return fmt.Errorf("read fitness history for %s: %w", e.RunID, err)
					}
					if ok && len(history) > tail {
						history = history[len(history)-tail:]
					}
					histories[i] = history
				}
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.stdout, "no runs found")
				return nil
			}
			for i, e := range entries {
				fmt.Fprintf(a.stdout, "run_id=%s created_at=%s model=%s seed=%d pop=%d gens=%d best_fitness=%.6g stop_reason=%s%s\n",
					e.RunID,
					e.CreatedAtUTC,
					e.Model,
					e.Seed,
					e.PopulationSize,
					e.Generations,
					e.BestFitness,
					e.StopReason,
					formatTail(histories[i]),
				)
			}
			return nil
		},
	}
	cmd.Flags().String("dir", "runs", "artifacts directory")
	cmd.Flags().Int("limit", 20, "max runs to list")
	cmd.Flags().Bool("json", false, "emit runs as JSON")
	cmd.Flags().Int("tail", 0, "append the last N best-so-far fitness values of each run")
	a.bind("runs", cmd)
	return cmd
}

func formatTail(history []float64) string {
	if len(history) == 0 {
		return ""
	}
	parts := make([]string, len(history))
	for i, v := range history {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return " history_tail=" + strings.Join(parts, ",")
}
