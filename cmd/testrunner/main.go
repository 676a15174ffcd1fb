// Command testrunner is the CLI entry point for the autonomous browser
// test-execution engine.
//
// # File Index
//
//   - main.go    - entry point, rootCmd, global flags, init()
//   - cmd_run.go - runCmd, resumeCmd, runPlan(), resumePlan(), printVerdict()
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"testrunner/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "testrunner",
	Short: "testrunner - autonomous browser test-execution engine",
	Long: `testrunner drives a plan of high-level element intents through a
browser session: it discovers selectors with a tiered ladder, gates every
action on a five-point actionability check, caches and heals selectors
across drift, and reports a pass/fail/blocked/partial verdict with a root
cause classification.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose telemetry logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (defaults applied if omitted)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall run timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configPath)
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		if ec, ok := err.(*exitCodeError); ok {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
