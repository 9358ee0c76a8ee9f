package cli

import (
	"log/slog"
	"os"

	"github.com/me/fetchq/internal/config"
	"github.com/me/fetchq/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDebug     bool
	flagQuiet     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.ClientConfig
	logger *slog.Logger
)

// defaultConfigPath returns the default config file path, checking the
// FETCHQ_CONFIG env var first. Empty means built-in defaults.
func defaultConfigPath() string {
	return os.Getenv("FETCHQ_CONFIG")
}

// NewRootCmd creates the root cobra command for the fetchq CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fetchq",
		Short: "fetchq — priority HTTP fetch queue",
		Long:  "fetchq fetches URLs through a priority queue with a bounded dispatch window, preemption, and retries.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.DefaultClientConfig()
			if flagConfig != "" {
				loaded, err := config.LoadClientConfig(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
			if flagQuiet {
				logger = logging.NewNop()
			}
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath(), "Config file path (or FETCHQ_CONFIG env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress log output")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newFetchCmd(),
		newBenchCmd(),
		newReportCmd(),
		newServeCmd(),
	)

	return root
}
