package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

type importFlags struct {
	format string
	dryRun bool
}

func newImportCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import relationships from JSON or CSV",
		Long: `Imports "subject is relation of object" declarations. Unknown persons are
created. Each declaration is proposed and accepted, so deduction runs as usual.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format (json, csv, auto)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate without saving")

	return cmd
}

func runImport(cmd *cobra.Command, filePath string, flags importFlags) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		opts := handlers.ImportOptions{
			Format: flags.format,
			DryRun: flags.dryRun,
		}

		result, err := d.Imports.Handle(ctx, filePath, opts)
		if err != nil {
			return fmt.Errorf("importing file: %w", err)
		}

		if jsonOutput {
			return printJSON(result)
		}

		if len(result.Errors) > 0 {
			fmt.Printf("Validation errors (%d):\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("  %s\n", e.Error())
			}
			fmt.Println()
		}
		printWarnings(result.Warnings)

		if flags.dryRun {
			fmt.Printf("Dry run: %d declarations would be imported", result.Imported)
		} else {
			fmt.Printf("Imported: %d declarations, %d persons created, %d derived", result.Imported, result.Persons, result.Derived)
		}
		if result.Skipped > 0 {
			fmt.Printf(", %d skipped (already exist)", result.Skipped)
		}
		if len(result.Errors) > 0 {
			fmt.Printf(", %d errors", len(result.Errors))
		}
		fmt.Println()

		return nil
	})
}
