package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"kinfit/internal/model"
)

func flagNames(cmd *cobra.Command) []string {
	var names []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})
	return names
}

// parseAssignments parses repeated name=value pairs.
func parseAssignments(raw []string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for _, item := range raw {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected name=value", item)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("parse value for %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// parseBounds parses repeated name=min:max pairs.
func parseBounds(raw []string) (map[string]model.Bound, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]model.Bound, len(raw))
	for _, item := range raw {
		name, interval, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid bound %q: expected name=min:max", item)
		}
		lo, hi, ok := strings.Cut(interval, ":")
		if !ok {
			return nil, fmt.Errorf("invalid bound %q: expected name=min:max", item)
		}
		minV, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lower bound for %s: %w", name, err)
		}
		maxV, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return nil, fmt.Errorf("parse upper bound for %s: %w", name, err)
		}
		out[name] = model.Bound{Min: minV, Max: maxV}
	}
	return out, nil
}

func formatParams(params map[string]float64, order []string) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		if v, ok := params[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.6g", name, v))
		}
	}
	return strings.Join(parts, " ")
}
