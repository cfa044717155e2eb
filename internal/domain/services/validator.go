package services

import (
	"context"
	"fmt"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// AgeRules holds the year gaps used by the age plausibility check.
type AgeRules struct {
	ParentChildMinGap int
	ParentChildMaxGap int
	SiblingMaxGap     int
	GrandparentMinGap int
}

// DefaultAgeRules returns the default gaps.
func DefaultAgeRules() AgeRules {
	return AgeRules{
		ParentChildMinGap: 15,
		ParentChildMaxGap: 60,
		SiblingMaxGap:     25,
		GrandparentMinGap: 30,
	}
}

// GenderMatches reports whether a person may hold code. Unknown gender always passes.
func GenderMatches(code entities.RelationType, person *entities.Person) bool {
	g := entities.GenderOf(person)
	if !g.Known() {
		return true
	}
	required := kinship.RequiredGender(code)
	return required == kinship.GenderAny || required == "" || required == g
}

// AgeIsPlausible reports whether subject can be code of object given their birth dates.
// Missing birth dates pass. Only parent/child, sibling and grandparent pairs are checked.
func (r AgeRules) AgeIsPlausible(code entities.RelationType, subject, object *entities.Person) bool {
	gap, ok := birthGap(subject, object)
	if !ok {
		return true
	}
	switch kinship.RoleOf(code) {
	case kinship.RoleParent:
		return gap >= r.ParentChildMinGap && gap <= r.ParentChildMaxGap
	case kinship.RoleChild:
		return -gap >= r.ParentChildMinGap && -gap <= r.ParentChildMaxGap
	case kinship.RoleSibling:
		return abs(gap) < r.SiblingMaxGap
	case kinship.RoleGrandparent:
		return gap >= r.GrandparentMinGap
	case kinship.RoleGrandchild:
		return -gap >= r.GrandparentMinGap
	default:
		return true
	}
}

// birthGap returns how many whole years subject is older than object.
func birthGap(subject, object *entities.Person) (int, bool) {
	if subject == nil || object == nil || subject.BirthDate == nil || object.BirthDate == nil {
		return 0, false
	}
	if !subject.BirthDate.After(*object.BirthDate) {
		return subject.AgeAt(*object.BirthDate)
	}
	years, ok := object.AgeAt(*subject.BirthDate)
	return -years, ok
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Validator bundles the consistency checks run before writes.
type Validator struct {
	rules AgeRules
	db    ports.RelationalDB
}

// NewValidator creates a new Validator.
func NewValidator(rules AgeRules, db ports.RelationalDB) *Validator {
	return &Validator{rules: rules, db: db}
}

// Rules returns the configured age rules.
func (v *Validator) Rules() AgeRules {
	return v.rules
}

// GenderMatches reports whether person may hold code.
func (v *Validator) GenderMatches(code entities.RelationType, person *entities.Person) bool {
	return GenderMatches(code, person)
}

// AgeIsPlausible reports whether the age gap fits code.
func (v *Validator) AgeIsPlausible(code entities.RelationType, subject, object *entities.Person) bool {
	return v.rules.AgeIsPlausible(code, subject, object)
}

// WouldDuplicate reports whether an edge already links the two persons in either direction.
func (v *Validator) WouldDuplicate(ctx context.Context, subjectID, objectID string) (bool, error) {
	for _, pair := range [][2]string{{subjectID, objectID}, {objectID, subjectID}} {
		edge, err := v.db.FindEdge(ctx, pair[0], pair[1])
		if err != nil {
			return false, fmt.Errorf("checking existing edge: %w", err)
		}
		if edge != nil {
			return true, nil
		}
	}
	return false, nil
}

// Check returns the advisory warnings for recording subject as code of object.
func (v *Validator) Check(code entities.RelationType, subject, object *entities.Person) []entities.Warning {
	var warnings []entities.Warning
	if !GenderMatches(code, subject) {
		warnings = append(warnings, entities.Warning{
			Kind:      entities.WarningGenderMismatch,
			Code:      code,
			SubjectID: subject.ID,
			ObjectID:  object.ID,
			Message:   fmt.Sprintf("%s is %s but %s requires %s", subject.Name, subject.Gender, code, kinship.RequiredGender(code)),
		})
	}
	if !v.rules.AgeIsPlausible(code, subject, object) {
		warnings = append(warnings, entities.Warning{
			Kind:      entities.WarningAgeImplausible,
			Code:      code,
			SubjectID: subject.ID,
			ObjectID:  object.ID,
			Message:   fmt.Sprintf("age gap between %s and %s is unusual for %s", subject.Name, object.Name, code),
		})
	}
	return warnings
}
