// Package cmd holds the command line entry points.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lowc1012/window-log-limiter/internal/config"
	"github.com/lowc1012/window-log-limiter/internal/log"
)

var (
	cfgFile string
	// loaded by the root command's PersistentPreRunE
	appConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "window-log-limiter",
	Short: "Per-client sliding window request limiter",
	Long: `Admits or rejects requests per client key from a sliding-window log of
coalesced request buckets kept in a shared store.

Run "serve" to start the HTTP service, or inspect and reset stored logs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := log.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		appConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
}
