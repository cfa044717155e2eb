package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

type relationsFlags struct {
	relType string
	format  string
}

func newRelationsCmd() *cobra.Command {
	var flags relationsFlags

	cmd := &cobra.Command{
		Use:   "relations <person>",
		Short: "List a person's relationships",
		Long: `Shows every relationship a person holds, declared or derived.

Examples:
  kin relations Amina
  kin relations Amina --type sister
  kin relations Amina --format list`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelations(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.relType, "type", "t", "", "Filter by relationship code")
	cmd.Flags().StringVar(&flags.format, "format", "tree", "Output format: tree, list")

	return cmd
}

func runRelations(cmd *cobra.Command, personRef string, flags relationsFlags) error {
	if flags.format != "tree" && flags.format != "list" {
		return fmt.Errorf("invalid format: %s (valid: tree, list)", flags.format)
	}

	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		result, err := d.Relations.HandleList(ctx, personRef, handlers.ListOptions{Type: flags.relType})
		if err != nil {
			return fmt.Errorf("listing relationships: %w", err)
		}

		if jsonOutput {
			return printJSON(result)
		}

		if len(result.Relationships) == 0 {
			fmt.Printf("No relationships found for %s\n", result.Person.Name)
			return nil
		}

		if flags.format == "list" {
			printRelationsList(result)
		} else {
			printRelationsTree(result)
		}
		return nil
	})
}

func relationMarks(info handlers.RelationInfo) string {
	var marks []string
	if info.Relationship.Automatic {
		marks = append(marks, "derived")
	}
	if info.Relationship.Tentative {
		marks = append(marks, "tentative")
	}
	if len(marks) == 0 {
		return ""
	}
	return " (" + strings.Join(marks, ", ") + ")"
}

func printRelationsList(result *handlers.ListResult) {
	fmt.Printf("Relationships for %s:\n", result.Person.Name)
	fmt.Println(strings.Repeat("-", 60))

	for _, info := range result.Relationships {
		fmt.Printf("%s is %s of %s%s\n",
			result.Person.Name,
			label(info.Relationship.Type),
			personName(info.Other),
			relationMarks(info),
		)
	}
}

func printRelationsTree(result *handlers.ListResult) {
	fmt.Printf("%s\n", result.Person.Name)

	for i, info := range result.Relationships {
		prefix := "+-"
		if i == len(result.Relationships)-1 {
			prefix = "\\-"
		}
		fmt.Printf("%s %s of %s%s\n", prefix, label(info.Relationship.Type), personName(info.Other), relationMarks(info))
	}
}
