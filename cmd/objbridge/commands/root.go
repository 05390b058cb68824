package commands

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"objbridge/config"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded before every subcommand runs
	globalConfig *config.Config
	logger       *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "objbridge",
	Short: "Remote object bridge server and inspector",
	Long: `objbridge - serve remote objects and inspect them through dynamic proxies.

Examples:
  # Serve the demo classes on the default port
  objbridge serve

  # Print the proxy type of the core singleton
  objbridge inspect mmcorej.CMMCore --addr 127.0.0.1:4827`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	l, err := cfg.BuildLogger()
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(l)
	globalConfig, logger = cfg, l
	return nil
}
