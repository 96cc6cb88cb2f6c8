package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/marvin-schl/cs-fmu-mapper/sim"

	// Built-in component types register themselves with the sim registry.
	_ "github.com/marvin-schl/cs-fmu-mapper/sim/master"
	_ "github.com/marvin-schl/cs-fmu-mapper/sim/model"
	_ "github.com/marvin-schl/cs-fmu-mapper/sim/scenario"
	_ "github.com/marvin-schl/cs-fmu-mapper/sim/sink"
)

var (
	configPath string  // Path to the resolved run configuration
	logLevel   string  // Log verbosity level
	duration   float64 // Optional override of the tend cutoff
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "cs-fmu-mapper",
	Short: "Cyclic co-simulation engine mapping variables between stepped components",
}

// runCmd executes one co-simulation run from a resolved configuration file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the co-simulation",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := sim.LoadRunConfig(configPath)
		if err != nil {
			return err
		}
		if duration > 0 {
			cfg.Tend = duration
		}

		components, err := cfg.BuildComponents()
		if err != nil {
			return err
		}
		mapper, err := sim.NewMapper(cfg.Mapping.Rules(), components)
		if err != nil {
			return err
		}
		orch, err := sim.NewOrchestrator(cfg, components, mapper)
		if err != nil {
			return err
		}

		// An operator interrupt aborts the run at the next cycle boundary or
		// suspension point; finalize still runs on every component.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runErr := orch.Run(ctx)
		orch.Metrics.Print()
		return runErr
	},
	SilenceUsage: true,
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the resolved run configuration")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Float64Var(&duration, "duration", 0, "Override the configured tend cutoff (seconds)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
