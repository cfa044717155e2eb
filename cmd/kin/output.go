package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

func personName(p *entities.Person) string {
	if p == nil {
		return "unknown"
	}
	return p.Name
}

func printWarnings(warnings []entities.Warning) {
	for _, w := range warnings {
		fmt.Printf("  warning: %s\n", w.String())
	}
}

// label renders a code the way people write it ("father-in-law").
func label(code entities.RelationType) string {
	return strings.ReplaceAll(string(code), "_", "-")
}
