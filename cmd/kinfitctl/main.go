package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"kinfit/internal/logging"
	"kinfit/pkg/kinfit"
)

const envPrefix = "KINFIT"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries per-invocation state shared by the subcommands.
type app struct {
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer
	cfgFile string
	logger  *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "kinfitctl",
		Short:         "Fit and simulate bioprocess growth kinetics",
		Long:          "Estimate Monod-type kinetic parameters from biomass, substrate and product time series, or simulate a model forward.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "text", "log format: text|json")
	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(
		newModelsCmd(a),
		newSimulateCmd(a),
		newEstimateCmd(a),
		newRunsCmd(a),
	)
	return root
}

func (a *app) init() error {
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			notFound := &viper.ConfigFileNotFoundError{}
			if !errors.As(err, notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}

	logger, err := logging.New(a.stderr, a.v.GetString("log.level"), a.v.GetString("log.format"))
	if err != nil {
		return err
	}
	a.logger = logger
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("using config file", "path", used)
	}
	return nil
}

func (a *app) client() (*kinfit.Client, error) {
	return kinfit.New(kinfit.Options{Logger: a.logger})
}

// bind registers every flag of cmd under section.<flag name>.
func (a *app) bind(section string, cmd *cobra.Command) {
	for _, name := range flagNames(cmd) {
		_ = a.v.BindPFlag(section+"."+name, cmd.Flags().Lookup(name))
	}
}
