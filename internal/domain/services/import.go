package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

const birthDateLayout = "2006-01-02"

// ImportOptions controls import behavior.
type ImportOptions struct {
	DryRun bool // Validate without saving
}

// ImportError represents an error for a specific declaration during import.
type ImportError struct {
	Line    int    // Line number (1-indexed, 0 if unknown)
	Field   string // Which field has the error
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ImportError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Imported int
	Skipped  int
	Derived  int
	Persons  int // Persons created
	Errors   []ImportError
	Warnings []entities.Warning
	// Touched lists everyone whose neighborhood changed.
	Touched []string
}

// ImportService imports relationship declarations. Each declaration goes through
// propose and accept, so imported edges are propagated like any other.
type ImportService struct {
	persons  *PersonService
	requests *RequestService
}

// NewImportService creates a new import service.
func NewImportService(persons *PersonService, requests *RequestService) *ImportService {
	return &ImportService{persons: persons, requests: requests}
}

// declaration is a validated RawDeclaration.
type declaration struct {
	line    int
	subject personSpec
	object  personSpec
	code    entities.RelationType
}

type personSpec struct {
	name      string
	gender    entities.Gender
	birthDate *time.Time
}

// Import validates and imports raw declarations in file order.
func (s *ImportService) Import(ctx context.Context, raws []parsers.RawDeclaration, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	valid, validationErrors := s.validateDeclarations(raws)
	result.Errors = validationErrors

	if opts.DryRun {
		result.Imported = len(valid)
		return result, nil
	}

	touched := make(map[string]bool)
	for _, d := range valid {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		subject, created, err := s.findOrCreate(ctx, d.subject)
		if err != nil {
			return nil, err
		}
		result.Persons += created
		object, created, err := s.findOrCreate(ctx, d.object)
		if err != nil {
			return nil, err
		}
		result.Persons += created

		req, warnings, err := s.requests.Propose(ctx, subject.ID, object.ID, d.code)
		if err != nil {
			if errors.Is(err, entities.ErrDuplicateRelation) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, ImportError{Line: d.line, Message: err.Error()})
			continue
		}
		result.Warnings = append(result.Warnings, warnings...)

		accepted, err := s.requests.Accept(ctx, req.ID, object.ID)
		if err != nil {
			result.Errors = append(result.Errors, ImportError{Line: d.line, Message: err.Error()})
			continue
		}
		result.Imported++
		touched[subject.ID] = true
		touched[object.ID] = true
		if accepted.Deduction != nil {
			result.Derived += accepted.Deduction.Written
			for _, id := range accepted.Deduction.Affected() {
				touched[id] = true
			}
		}
	}

	for id := range touched {
		result.Touched = append(result.Touched, id)
	}
	return result, nil
}

// validateDeclarations validates raw declarations and returns valid ones with any errors.
func (s *ImportService) validateDeclarations(raws []parsers.RawDeclaration) ([]declaration, []ImportError) {
	valid := make([]declaration, 0, len(raws))
	var errs []ImportError

	for i := range raws {
		raw := &raws[i]
		lineNum := raw.LineNum
		if lineNum == 0 {
			lineNum = i + 1
		}

		d, err := validateRawDeclaration(raw, lineNum)
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		valid = append(valid, d)
	}

	return valid, errs
}

// validateRawDeclaration validates a single raw declaration.
func validateRawDeclaration(raw *parsers.RawDeclaration, lineNum int) (declaration, *ImportError) {
	if raw.Subject == "" {
		return declaration{}, &ImportError{Line: lineNum, Field: "subject", Message: "missing required field: subject"}
	}
	if raw.Relation == "" {
		return declaration{}, &ImportError{Line: lineNum, Field: "relation", Message: "missing required field: relation"}
	}
	if raw.Object == "" {
		return declaration{}, &ImportError{Line: lineNum, Field: "object", Message: "missing required field: object"}
	}
	if entities.NormalizeName(raw.Subject) == entities.NormalizeName(raw.Object) {
		return declaration{}, &ImportError{Line: lineNum, Field: "object", Value: raw.Object, Message: entities.ErrSelfRelation.Error()}
	}

	code, err := kinship.Parse(raw.Relation)
	if err != nil {
		return declaration{}, &ImportError{Line: lineNum, Field: "relation", Value: raw.Relation, Message: err.Error()}
	}

	subject, ierr := parsePersonSpec(raw.Subject, raw.SubjectGender, raw.SubjectBirthDate, "subject", lineNum)
	if ierr != nil {
		return declaration{}, ierr
	}
	object, ierr := parsePersonSpec(raw.Object, raw.ObjectGender, raw.ObjectBirthDate, "object", lineNum)
	if ierr != nil {
		return declaration{}, ierr
	}

	return declaration{line: lineNum, subject: subject, object: object, code: code}, nil
}

func parsePersonSpec(name, gender, birth, field string, lineNum int) (personSpec, *ImportError) {
	spec := personSpec{name: name, gender: entities.ParseGender(gender)}
	if gender != "" && !spec.gender.Known() && entities.NormalizeName(gender) != string(entities.GenderUnknown) {
		return personSpec{}, &ImportError{
			Line:    lineNum,
			Field:   field + "_gender",
			Value:   gender,
			Message: fmt.Sprintf("invalid gender %q (valid: male, female, unknown)", gender),
		}
	}
	if birth != "" {
		t, err := time.Parse(birthDateLayout, birth)
		if err != nil {
			return personSpec{}, &ImportError{
				Line:    lineNum,
				Field:   field + "_birth_date",
				Value:   birth,
				Message: "birth date must be YYYY-MM-DD",
			}
		}
		spec.birthDate = &t
	}
	return spec, nil
}

func (s *ImportService) findOrCreate(ctx context.Context, spec personSpec) (*entities.Person, int, error) {
	p, created, err := s.persons.FindOrCreate(ctx, spec.name, spec.gender, spec.birthDate)
	if err != nil {
		return nil, 0, err
	}
	if created {
		return p, 1, nil
	}
	return p, 0, nil
}
