package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses declarations from a JSON array.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed declarations.
func (p *JSONParser) Parse(r io.Reader) ([]RawDeclaration, error) {
	var decls []RawDeclaration

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&decls); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Set line numbers (array index + 1, 1-indexed)
	for i := range decls {
		decls[i].LineNum = i + 1
	}

	return decls, nil
}
