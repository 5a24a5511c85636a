package cmd

import (
	"github.com/signalnine/npubench/internal/config"
	"github.com/signalnine/npubench/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile       string
	flagLogLevel  string
	flagLogFormat string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "npubench",
		Short:        "Run compiled NPU models on a remote board and collect per-core metrics",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "npubench.yaml", "config file path (optional)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (console, json)")
	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	return root
}

// loadConfig reads --config. The default path may be absent; an explicit one
// must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flags().Changed("config") {
		return config.Load(cfgFile)
	}
	return config.LoadOptional(cfgFile)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.Log
	if flagLogLevel != "" {
		lc.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		lc.Format = flagLogFormat
	}
	return logging.New(lc)
}
