// Package kinship holds the closed catalog of relationship codes and the
// algebra over them: gender-correct inverses and two-step composition.
//
// Every code belongs to a gender-neutral Role. An edge (A, B, code) reads
// "A is the code of B", so Compose(codeAB, codeBC) answers "what is A of C".
// The catalog is immutable and built once at package init.
package kinship

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// Category groups relationship codes.
type Category string

const (
	CategoryDirect   Category = "direct"
	CategoryMarriage Category = "marriage"
	CategoryInLaw    Category = "in_law"
	CategoryExtended Category = "extended"
)

// GenderAny is the required gender of codes any holder may carry.
const GenderAny entities.Gender = "any"

// Role is the gender-neutral meaning of a code.
type Role string

const (
	RoleParent       Role = "parent"
	RoleChild        Role = "child"
	RoleSibling      Role = "sibling"
	RoleSpouse       Role = "spouse"
	RoleGrandparent  Role = "grandparent"
	RoleGrandchild   Role = "grandchild"
	RoleUncleAunt    Role = "uncle_aunt"
	RoleNephewNiece  Role = "nephew_niece"
	RoleCousin       Role = "cousin"
	RoleParentInLaw  Role = "parent_in_law"
	RoleChildInLaw   Role = "child_in_law"
	RoleSiblingInLaw Role = "sibling_in_law"
	RoleStepParent   Role = "step_parent"
	RoleStepChild    Role = "step_child"
)

// TypeDef is one registry entry.
type TypeDef struct {
	Code           entities.RelationType
	Role           Role
	RequiredGender entities.Gender
	// GenerationDelta is the holder's generation relative to the object (+1 for a parent).
	GenerationDelta int
	Category        Category
}

type roleDef struct {
	inverse   Role
	male      entities.RelationType
	female    entities.RelationType
	category  Category
	delta     int
	derivable bool
}

// roles is the whole catalog. Derivable roles may be materialized by the deduction engine;
// the rest only ever appear in suggestions.
var roles = map[Role]roleDef{
	RoleParent:       {RoleChild, entities.RelationFather, entities.RelationMother, CategoryDirect, 1, true},
	RoleChild:        {RoleParent, entities.RelationSon, entities.RelationDaughter, CategoryDirect, -1, true},
	RoleSibling:      {RoleSibling, entities.RelationBrother, entities.RelationSister, CategoryDirect, 0, true},
	RoleSpouse:       {RoleSpouse, entities.RelationHusband, entities.RelationWife, CategoryMarriage, 0, true},
	RoleGrandparent:  {RoleGrandchild, entities.RelationGrandfather, entities.RelationGrandmother, CategoryExtended, 2, true},
	RoleGrandchild:   {RoleGrandparent, entities.RelationGrandson, entities.RelationGranddaughter, CategoryExtended, -2, true},
	RoleUncleAunt:    {RoleNephewNiece, entities.RelationUncle, entities.RelationAunt, CategoryExtended, 1, true},
	RoleNephewNiece:  {RoleUncleAunt, entities.RelationNephew, entities.RelationNiece, CategoryExtended, -1, true},
	RoleCousin:       {RoleCousin, entities.RelationCousin, entities.RelationCousin, CategoryExtended, 0, false},
	RoleParentInLaw:  {RoleChildInLaw, entities.RelationFatherInLaw, entities.RelationMotherInLaw, CategoryInLaw, 1, true},
	RoleChildInLaw:   {RoleParentInLaw, entities.RelationSonInLaw, entities.RelationDaughterInLaw, CategoryInLaw, -1, true},
	RoleSiblingInLaw: {RoleSiblingInLaw, entities.RelationBrotherInLaw, entities.RelationSisterInLaw, CategoryInLaw, 0, true},
	RoleStepParent:   {RoleStepChild, entities.RelationStepfather, entities.RelationStepmother, CategoryInLaw, 1, true},
	RoleStepChild:    {RoleStepParent, entities.RelationStepson, entities.RelationStepdaughter, CategoryInLaw, -1, true},
}

// compositions maps (role of A to B, role of B to C) to the role of A to C.
// Pairs absent from the table are not inferable.
var compositions = map[[2]Role]Role{
	{RoleParent, RoleParent}:      RoleGrandparent,
	{RoleChild, RoleChild}:        RoleGrandchild,
	{RoleChild, RoleParent}:       RoleSibling,
	{RoleSpouse, RoleParent}:      RoleParent,
	{RoleChild, RoleSpouse}:       RoleStepChild,
	{RoleParent, RoleSpouse}:      RoleParentInLaw,
	{RoleSpouse, RoleChild}:       RoleChildInLaw,
	{RoleParent, RoleSibling}:     RoleParent,
	{RoleSibling, RoleChild}:      RoleChild,
	{RoleSibling, RoleParent}:     RoleUncleAunt,
	{RoleChild, RoleSibling}:      RoleNephewNiece,
	{RoleSpouse, RoleSibling}:     RoleSiblingInLaw,
	{RoleSibling, RoleSpouse}:     RoleSiblingInLaw,
	{RoleChild, RoleUncleAunt}:    RoleCousin,
	{RoleNephewNiece, RoleParent}: RoleCousin,
}

var defs map[entities.RelationType]TypeDef

func init() {
	defs = make(map[entities.RelationType]TypeDef, len(roles)*2)
	for role, rd := range roles {
		if rd.male == rd.female {
			defs[rd.male] = TypeDef{Code: rd.male, Role: role, RequiredGender: GenderAny, GenerationDelta: rd.delta, Category: rd.category}
			continue
		}
		defs[rd.male] = TypeDef{Code: rd.male, Role: role, RequiredGender: entities.GenderMale, GenerationDelta: rd.delta, Category: rd.category}
		defs[rd.female] = TypeDef{Code: rd.female, Role: role, RequiredGender: entities.GenderFemale, GenerationDelta: rd.delta, Category: rd.category}
	}
}

// Lookup returns the registry entry for code.
func Lookup(code entities.RelationType) (TypeDef, bool) {
	def, ok := defs[code]
	return def, ok
}

// IsValid reports whether code is in the catalog.
func IsValid(code entities.RelationType) bool {
	_, ok := defs[code]
	return ok
}

// Parse normalizes user input ("Father-in-law", "step mother") to a catalog code.
func Parse(s string) (entities.RelationType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "step_father":
		norm = "stepfather"
	case "step_mother":
		norm = "stepmother"
	case "step_son":
		norm = "stepson"
	case "step_daughter":
		norm = "stepdaughter"
	}
	code := entities.RelationType(norm)
	if !IsValid(code) {
		return "", fmt.Errorf("%w: %q (valid: %s)", entities.ErrInvalidType, s, strings.Join(CodeNames(), ", "))
	}
	return code, nil
}

// Codes returns every catalog code, sorted.
func Codes() []entities.RelationType {
	out := make([]entities.RelationType, 0, len(defs))
	for code := range defs {
		out = append(out, code)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CodeNames returns every catalog code as a string, sorted.
func CodeNames() []string {
	codes := Codes()
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}

// RoleOf returns the role of code, or "" when the code is unknown.
func RoleOf(code entities.RelationType) Role {
	return defs[code].Role
}

// CategoryOf returns the category of code.
func CategoryOf(code entities.RelationType) Category {
	return defs[code].Category
}

// GenerationDelta returns the holder's generation relative to the object.
func GenerationDelta(code entities.RelationType) int {
	return defs[code].GenerationDelta
}

// RequiredGender returns the gender a holder of code must have, or GenderAny.
func RequiredGender(code entities.RelationType) entities.Gender {
	return defs[code].RequiredGender
}

// RoleCategory returns the category of a role.
func RoleCategory(role Role) Category {
	return roles[role].category
}

// Derivable reports whether the deduction engine may materialize the role as an edge.
func Derivable(role Role) bool {
	return roles[role].derivable
}

// CodeFor picks the code a holder of the given gender carries for role.
// With an unknown gender the masculine form is used by convention and the
// result is tentative, unless the role has a single gender-neutral code.
func CodeFor(role Role, holder entities.Gender) (entities.RelationType, bool) {
	rd, ok := roles[role]
	if !ok {
		return "", false
	}
	switch holder {
	case entities.GenderMale:
		return rd.male, false
	case entities.GenderFemale:
		return rd.female, false
	default:
		return rd.male, rd.male != rd.female
	}
}

// InverseRole returns the role seen from the other end of an edge.
func InverseRole(role Role) Role {
	return roles[role].inverse
}

// Inverse returns the label of the mirrored edge. For (A, B, code) the mirror is
// (B, A, inverse), so the label depends on B's gender. Tentative is true when
// B's gender is unknown and the label was chosen by convention.
func Inverse(code entities.RelationType, objectGender entities.Gender) (inverse entities.RelationType, tentative bool, err error) {
	def, ok := defs[code]
	if !ok {
		return "", false, fmt.Errorf("%w: %q", entities.ErrInvalidType, code)
	}
	inverse, tentative = CodeFor(roles[def.Role].inverse, objectGender)
	return inverse, tentative, nil
}

// Compose returns the role of A to C given A is ab of B and B is bc of C.
// It returns false when no closed-form rule exists; callers must not guess.
func Compose(ab, bc entities.RelationType) (Role, bool) {
	ra, ok := defs[ab]
	if !ok {
		return "", false
	}
	rb, ok := defs[bc]
	if !ok {
		return "", false
	}
	role, ok := compositions[[2]Role{ra.Role, rb.Role}]
	return role, ok
}

// IsParentRole reports whether role is a biological or step parent.
func IsParentRole(role Role) bool {
	return role == RoleParent || role == RoleStepParent
}

// IsChildRole reports whether role is a biological or step child.
func IsChildRole(role Role) bool {
	return role == RoleChild || role == RoleStepChild
}

// StepVariant maps parent and child roles to their step forms. Other roles pass through.
func StepVariant(role Role) Role {
	switch role {
	case RoleParent:
		return RoleStepParent
	case RoleChild:
		return RoleStepChild
	default:
		return role
	}
}

// BiologicalVariant maps step roles to their parent and child forms. Other roles pass through.
func BiologicalVariant(role Role) Role {
	switch role {
	case RoleStepParent:
		return RoleParent
	case RoleStepChild:
		return RoleChild
	default:
		return role
	}
}
