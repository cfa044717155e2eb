package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
)

type personAddFlags struct {
	gender    string
	birthDate string
}

func newPersonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "person",
		Short: "Manage persons",
	}
	cmd.AddCommand(newPersonAddCmd(), newPersonListCmd())
	return cmd
}

func newPersonAddCmd() *cobra.Command {
	var flags personAddFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a person",
		Long: `Registers a person. Names are unique ignoring case.

Examples:
  kin person add Ahmed --gender male
  kin person add "Amina Said" --gender female --born 1998-11-20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonAdd(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.gender, "gender", "g", "", "Gender (male, female, unknown)")
	cmd.Flags().StringVar(&flags.birthDate, "born", "", "Birth date (YYYY-MM-DD)")

	return cmd
}

func runPersonAdd(cmd *cobra.Command, name string, flags personAddFlags) error {
	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		p, err := d.Persons.HandleAdd(ctx, name, flags.gender, flags.birthDate)
		if err != nil {
			return fmt.Errorf("adding person: %w", err)
		}
		if jsonOutput {
			return printJSON(p)
		}
		fmt.Printf("Added %s (%s): %s\n", p.Name, p.Gender, p.ID)
		return nil
	})
}

func newPersonListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persons by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				persons, err := d.Persons.HandleList(ctx, limit, offset)
				if err != nil {
					return fmt.Errorf("listing persons: %w", err)
				}
				if jsonOutput {
					return printJSON(persons)
				}
				if len(persons) == 0 {
					fmt.Println("No persons found.")
					return nil
				}
				for _, p := range persons {
					born := ""
					if p.BirthDate != nil {
						born = ", born " + p.BirthDate.Format(handlers.BirthDateLayout)
					}
					fmt.Printf("%-36s  %s (%s%s)\n", p.ID, p.Name, p.Gender, born)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultListLimit, "Maximum number of persons")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of persons to skip")

	return cmd
}
