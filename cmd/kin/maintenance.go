package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/domain/services"
)

func newDeduceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deduce <person>",
		Short: "Backfill derived relationships around a person",
		Long:  "Re-runs deduction over every edge the person holds. Safe to repeat.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				result, err := d.Relations.HandleDeduce(ctx, args[0])
				if err != nil {
					return fmt.Errorf("deducing relationships: %w", err)
				}
				if jsonOutput {
					return printJSON(result)
				}
				fmt.Printf("Derived %d relationships, %d skipped", result.Written, result.Skipped)
				if result.Failed > 0 {
					fmt.Printf(", %d failed", result.Failed)
				}
				fmt.Println()
				return nil
			})
		},
	}
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <person>",
		Short: "Report graph inconsistencies around a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				issues, err := d.Relations.HandleAudit(ctx, args[0])
				if err != nil {
					return fmt.Errorf("auditing: %w", err)
				}
				if jsonOutput {
					return printJSON(issues)
				}
				if len(issues) == 0 {
					fmt.Println("No issues found.")
					return nil
				}
				printIssues(issues)
				return nil
			})
		},
	}
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair <person>",
		Short: "Fix graph inconsistencies around a person",
		Long:  "Fixes what audit reports. Every change is written to the audit log.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				report, err := d.Relations.HandleRepair(ctx, args[0])
				if err != nil {
					return fmt.Errorf("repairing: %w", err)
				}
				if jsonOutput {
					return printJSON(report)
				}
				printIssues(report.Issues)
				fmt.Printf("Fixed %d of %d issues\n", report.Fixed, len(report.Issues))
				return nil
			})
		},
	}
}

func printIssues(issues []services.Issue) {
	for _, issue := range issues {
		fmt.Printf("  %-20s %s -> %s [%s]", issue.Kind, issue.Edge.SubjectID, issue.Edge.ObjectID, label(issue.Edge.Type))
		if issue.Fix != "" {
			fmt.Printf(" fix: %s", label(issue.Fix))
		}
		fmt.Println()
	}
}
