package main

import (
	"fmt"
	"os"

	"github.com/alphabot-ai/threadcache/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logSink    string
)

var rootCmd = &cobra.Command{
	Use:   "threadcache",
	Short: "Discussion server with a shared, personalized comment render cache",
	Long: `threadcache serves stories and threaded comments. Comment panes are
rendered once per content state and shared across viewers; each viewer's
votes, saves, friends and reply links are applied as a small patch.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file overlaid on the environment")
	rootCmd.PersistentFlags().StringVar(&logSink, "log", "", "log destination: empty for stdout or file:/path")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
