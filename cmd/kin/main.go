// Package main provides the entry point for the kin CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	jsonOutput bool
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := newRootCmd()
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kin",
		Short:         "Consent-based family graph with relationship deduction and suggestions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newInitCmd(),
		newPersonCmd(),
		newProposeCmd(),
		newRequestsCmd(),
		newAcceptCmd(),
		newDeclineCmd(),
		newCancelCmd(),
		newRelationsCmd(),
		newSuggestCmd(),
		newSuggestionsCmd(),
		newDeduceCmd(),
		newAuditCmd(),
		newRepairCmd(),
		newImportCmd(),
		newExportCmd(),
		newWorkerCmd(),
	)

	return rootCmd
}
