package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/kin-core/internal/application/handlers"
	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

type exportFlags struct {
	format  string
	output  string
	derived bool
}

func newExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export relationships to file",
		Long: `Exports one declaration per linked pair in JSON, CSV, or markdown format.
JSON and CSV output can be fed back to "kin import".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&flags.derived, "derived", false, "Include derived relationships")

	return cmd
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	if !slices.Contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}

	ctx := cmd.Context()

	return withDeps(ctx, func(d *Deps) error {
		decls, err := fetchDeclarations(ctx, d, flags.derived)
		if err != nil {
			return err
		}
		if len(decls) == 0 {
			return fmt.Errorf("no relationships found to export")
		}
		return writeExport(decls, flags.format, flags.output)
	})
}

func fetchDeclarations(ctx context.Context, d *Deps, includeDerived bool) ([]parsers.RawDeclaration, error) {
	persons, err := d.Persons.HandleList(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing persons: %w", err)
	}

	held := make(map[string][]handlers.RelationInfo, len(persons))
	for _, p := range persons {
		result, err := d.Relations.HandleList(ctx, p.ID, handlers.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("listing relationships of %s: %w", p.Name, err)
		}
		held[p.ID] = result.Relationships
	}

	return collectDeclarations(persons, held, includeDerived), nil
}

// collectDeclarations keeps the first edge seen for each pair. Either side of a
// mirrored pair recreates both on import.
func collectDeclarations(persons []*entities.Person, held map[string][]handlers.RelationInfo, includeDerived bool) []parsers.RawDeclaration {
	seen := make(map[[2]string]bool)
	var decls []parsers.RawDeclaration

	for _, p := range persons {
		for _, info := range held[p.ID] {
			if info.Other == nil || (info.Relationship.Automatic && !includeDerived) {
				continue
			}
			key := [2]string{p.ID, info.Other.ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			decls = append(decls, parsers.RawDeclaration{
				Subject:          p.Name,
				SubjectGender:    string(p.Gender),
				SubjectBirthDate: formatBirthDate(p),
				Relation:         string(info.Relationship.Type),
				Object:           info.Other.Name,
				ObjectGender:     string(info.Other.Gender),
				ObjectBirthDate:  formatBirthDate(info.Other),
			})
		}
	}
	return decls
}

func formatBirthDate(p *entities.Person) string {
	if p.BirthDate == nil {
		return ""
	}
	return p.BirthDate.Format(handlers.BirthDateLayout)
}

func writeExport(decls []parsers.RawDeclaration, format, output string) (err error) {
	var w io.Writer = os.Stdout
	var f *os.File

	if output != "" {
		f, err = os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	}

	if err := formatDeclarations(w, decls, format); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if output != "" {
		fmt.Printf("Exported %d relationships to %s\n", len(decls), output)
	}
	return nil
}

func formatDeclarations(w io.Writer, decls []parsers.RawDeclaration, format string) error {
	switch format {
	case "json":
		return formatJSON(w, decls)
	case "csv":
		return formatCSV(w, decls)
	case "markdown":
		return formatMarkdown(w, decls)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func formatJSON(w io.Writer, decls []parsers.RawDeclaration) error {
	if decls == nil {
		decls = []parsers.RawDeclaration{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(decls)
}

var csvHeader = []string{"subject", "subject_gender", "subject_birth_date", "relation", "object", "object_gender", "object_birth_date"}

func formatCSV(w io.Writer, decls []parsers.RawDeclaration) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, d := range decls {
		row := []string{
			d.Subject,
			d.SubjectGender,
			d.SubjectBirthDate,
			d.Relation,
			d.Object,
			d.ObjectGender,
			d.ObjectBirthDate,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatMarkdown(w io.Writer, decls []parsers.RawDeclaration) error {
	if _, err := fmt.Fprintf(w, "# Family Relationships\n\nTotal: %d\n\n", len(decls)); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "| Person | Is | Of |\n|--------|----|----|\n"); err != nil {
		return err
	}

	for _, d := range decls {
		if _, err := fmt.Fprintf(w, "| %s | %s | %s |\n",
			escapeMarkdown(d.Subject),
			strings.ReplaceAll(d.Relation, "_", "-"),
			escapeMarkdown(d.Object),
		); err != nil {
			return err
		}
	}

	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
