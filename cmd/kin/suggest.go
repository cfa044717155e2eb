package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

func newSuggestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <person>",
		Short: "Regenerate relationship suggestions for a person",
		Long: `Looks two hops out from the person for people they are not yet linked to,
labels each candidate where the graph allows, and stores the best ones.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				infos, err := d.Suggestions.HandleGenerate(ctx, args[0])
				if err != nil {
					return fmt.Errorf("generating suggestions: %w", err)
				}
				return printSuggestions(args[0], infos)
			})
		},
	}
}

func newSuggestionsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "suggestions <person>",
		Short: "List stored suggestions for a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				infos, err := d.Suggestions.HandleList(ctx, args[0], status)
				if err != nil {
					return fmt.Errorf("listing suggestions: %w", err)
				}
				return printSuggestions(args[0], infos)
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "pending", "Filter by status (pending, accepted, dismissed, all)")
	cmd.AddCommand(newSuggestionAcceptCmd(), newSuggestionDismissCmd())

	return cmd
}

func newSuggestionAcceptCmd() *cobra.Command {
	var relation string

	cmd := &cobra.Command{
		Use:   "accept <suggestion-id> <actor>",
		Short: "Turn a suggestion into a relationship request",
		Long: `Sends the candidate a request with the suggested code. Unlabeled
suggestions need --as.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				result, err := d.Suggestions.HandleAccept(ctx, args[0], args[1], relation)
				if err != nil {
					return fmt.Errorf("accepting suggestion: %w", err)
				}
				if jsonOutput {
					return printJSON(result)
				}
				fmt.Printf("Request %s sent (%s)\n", result.Request.ID, label(result.Request.Type))
				printWarnings(result.Warnings)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&relation, "as", "", "Relationship code to propose (overrides the suggested one)")

	return cmd
}

func newSuggestionDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <suggestion-id> <actor>",
		Short: "Dismiss a suggestion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				if err := d.Suggestions.HandleDismiss(ctx, args[0], args[1]); err != nil {
					return fmt.Errorf("dismissing suggestion: %w", err)
				}
				fmt.Printf("Dismissed: %s\n", args[0])
				return nil
			})
		},
	}
}

func printSuggestions(owner string, infos []handlers.SuggestionInfo) error {
	if jsonOutput {
		return printJSON(infos)
	}
	if len(infos) == 0 {
		fmt.Printf("No suggestions for %s\n", owner)
		return nil
	}
	for _, info := range infos {
		s := info.Suggestion
		code := "?"
		if s.HasType() {
			code = label(s.Type)
		}
		fmt.Printf("%s  [%2d] %s: %s (%s)\n", s.ID, s.Score, personName(info.Candidate), code, s.Reason)
	}
	return nil
}
