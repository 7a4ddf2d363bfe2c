package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alivesay/squire/internal/config"
)

// app carries what the root command resolves for its subcommands
type app struct {
	configPath string
	logLevel   string

	cfg       *config.Config
	logOutput io.Closer
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "squire",
		Short: "Millennium paging list parser and delivery daemon",
		Long: `Squire turns the title and item paging lists saved by a Millennium ILS into
CSV, XML and Parquet, adding live availability from the WebPAC.

Run as a daemon it watches the auto-notices drop directory, pairs each branch's
title list with the same day's item list, publishes HTML pages and mails the
branch staff.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if a.configPath == "" {
				a.configPath = os.Getenv("SQUIRE_CONFIG")
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg

			closer, err := setupLogging(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			a.logOutput = closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logOutput != nil {
				return a.logOutput.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to squired.yaml (default "+config.DefaultPath+", env SQUIRE_CONFIG)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newParseCmd(a))
	cmd.AddCommand(newItemsCmd(a))
	cmd.AddCommand(newDaemonCmd(a))
	cmd.AddCommand(newScopesCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newServeCmd(a))

	return cmd
}
