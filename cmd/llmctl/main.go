// Command llmctl runs pipeline, embedding and search operations against the
// knowledge database without going through the REST server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"llm-knowledge-be/internal/bootstrap"
	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/pkg/logger"
	"llm-knowledge-be/pkg/database"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	container  *bootstrap.Container
)

var rootCmd = &cobra.Command{
	Use:           "llmctl",
	Short:         "Operate the knowledge pipeline from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		db, err := database.Open(cfg.Database.Connection, cfg.Database.Debug)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		// File-only logging keeps stdout free for results and MCP stdio.
		c, err := bootstrap.NewContainer(db, cfg, bootstrap.WithLogger(logger.NewIsolatedLogger(cfg.App.LogFilePath)))
		if err != nil {
			return fmt.Errorf("bootstrapping: %w", err)
		}
		container = c
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if container != nil {
			container.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
