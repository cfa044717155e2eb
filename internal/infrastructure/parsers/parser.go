// Package parsers provides parsers for importing relationship declarations from various formats.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawDeclaration is one "subject is relation of object" row before validation.
// Genders and birth dates are optional and only used when a person is created.
type RawDeclaration struct {
	Subject          string `json:"subject"`
	SubjectGender    string `json:"subject_gender,omitempty"`
	SubjectBirthDate string `json:"subject_birth_date,omitempty"` // YYYY-MM-DD
	Relation         string `json:"relation"`
	Object           string `json:"object"`
	ObjectGender     string `json:"object_gender,omitempty"`
	ObjectBirthDate  string `json:"object_birth_date,omitempty"` // YYYY-MM-DD
	LineNum          int    `json:"-"`                           // Line number in source file (set by parser)
}

// Parser defines the interface for parsing declarations from various formats.
type Parser interface {
	Parse(r io.Reader) ([]RawDeclaration, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
