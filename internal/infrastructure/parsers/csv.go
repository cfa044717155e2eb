package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser parses declarations from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed declarations.
// Expected columns: subject, relation, object, and optionally subject_gender,
// subject_birth_date, object_gender, object_birth_date.
func (p *CSVParser) Parse(r io.Reader) ([]RawDeclaration, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, colIndex)
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	requiredCols := []string{"subject", "relation", "object"}
	for _, col := range requiredCols {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	return colIndex, nil
}

// readRecords reads all data rows and converts them to RawDeclarations.
func (p *CSVParser) readRecords(reader *csv.Reader, colIndex map[string]int) ([]RawDeclaration, error) {
	var decls []RawDeclaration
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		decls = append(decls, RawDeclaration{
			Subject:          getColumn(record, colIndex, "subject"),
			SubjectGender:    getColumn(record, colIndex, "subject_gender"),
			SubjectBirthDate: getColumn(record, colIndex, "subject_birth_date"),
			Relation:         getColumn(record, colIndex, "relation"),
			Object:           getColumn(record, colIndex, "object"),
			ObjectGender:     getColumn(record, colIndex, "object_gender"),
			ObjectBirthDate:  getColumn(record, colIndex, "object_birth_date"),
			LineNum:          lineNum,
		})
	}

	return decls, nil
}

// getColumn safely retrieves a trimmed column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}
