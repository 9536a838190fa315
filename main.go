package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"visitor-kiosk/config"
)

const programName = "visitor-kiosk"

var configFile string

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Visitor check-in kiosk backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		// no subcommand: serve
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ./config.yaml)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(exportCommand())
	rootCmd.AddCommand(normalizePurposesCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
