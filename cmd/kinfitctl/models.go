package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List kinetic models, their parameters and default bounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			items := client.Models(cmd.Context())
			if a.v.GetBool("models.json") {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			for _, item := range items {
				bounds := make([]string, len(item.Params))
				for i, name := range item.Params {
					bounds[i] = fmt.Sprintf("%s=[%g,%g]", name, item.Bounds[i].Min, item.Bounds[i].Max)
				}
				fmt.Fprintf(a.stdout, "model=%s params=%s bounds=%s\n",
					item.Kind,
					strings.Join(item.Params, ","),
					strings.Join(bounds, " "),
				)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "emit the catalog as JSON")
	a.bind("models", cmd)
	return cmd
}
