package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/midcourse-planner/internal/config"
	"github.com/signalsfoundry/midcourse-planner/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "planner",
	Short:         "Midcourse sensor tasking planner",
	Long:          "planner schedules constellation observations of ballistic missiles in midcourse and renders the plan as a timeline.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", os.Getenv("LOG_FORMAT"), "text or json")
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(oracleCmd)
}

func newLogger() logging.Logger {
	return logging.New(logging.Config{Level: logLevel, Format: logFormat})
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}
