package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"go-healthwatch/internal/config"
	"go-healthwatch/internal/logging"
)

type globalFlags struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "healthwatch",
		Short: "Website, database and host health monitoring agent",
		Long: `healthwatch probes websites and their TLS certificates, samples a
PostgreSQL database and the local host, persists every observation and alerts
a chat webhook when something crosses a threshold.

Run "healthwatch run" from a scheduler every minute and "healthwatch analyze"
every few minutes, or let "healthwatch serve" schedule both.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(
		newRunCmd(flags),
		newAnalyzeCmd(flags),
		newServeCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// setup loads configuration and builds the logger. Logs go to stderr so
// reports on stdout stay clean.
func (f *globalFlags) setup() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if f.logLevel != "" {
		level = f.logLevel
	}
	logger := logging.New(os.Stderr, level, cfg.Location(), logging.IsTerminal(os.Stderr))
	return cfg, logger, nil
}
