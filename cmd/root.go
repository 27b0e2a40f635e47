package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/skilltune/internal/config"
	"github.com/signalnine/skilltune/internal/logging"
)

var cfgFile string

const defaultConfigFile = "skilltune.yaml"

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "skilltune",
		Short:        "Evaluate and optimize skill trigger descriptions",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file path")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
	root.PersistentFlags().String("env-file", "", "dotenv file with API keys")
	root.AddCommand(newEvalCmd())
	root.AddCommand(newLoopCmd())
	root.AddCommand(newImproveCmd())
	root.AddCommand(newSplitCmd())
	root.AddCommand(newBenchmarkCmd())
	return root
}

// loadConfig reads the config file, merges flag and environment
// overrides, then configures logging and exports secrets. The default
// config path may be absent; an explicit --config must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	missingOK := !cmd.Flags().Changed("config")
	cfg, err := config.LoadOrDefault(cfgFile, missingOK)
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		return nil, err
	}
	if err := config.LoadSecrets(cfg.Secrets.EnvFile); err != nil {
		logging.New("config").Warn("could not load secrets", "err", err)
	}
	return cfg, nil
}
