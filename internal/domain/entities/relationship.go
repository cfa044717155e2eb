package entities

import "time"

// RelationType is a kinship code. An edge (subject, object, T) reads
// "subject is the T of object": (Ahmed, Mohammed, father) means Ahmed is Mohammed's father.
type RelationType string

const (
	RelationFather   RelationType = "father"
	RelationMother   RelationType = "mother"
	RelationSon      RelationType = "son"
	RelationDaughter RelationType = "daughter"
	RelationBrother  RelationType = "brother"
	RelationSister   RelationType = "sister"

	RelationHusband RelationType = "husband"
	RelationWife    RelationType = "wife"

	RelationGrandfather   RelationType = "grandfather"
	RelationGrandmother   RelationType = "grandmother"
	RelationGrandson      RelationType = "grandson"
	RelationGranddaughter RelationType = "granddaughter"
	RelationUncle         RelationType = "uncle"
	RelationAunt          RelationType = "aunt"
	RelationNephew        RelationType = "nephew"
	RelationNiece         RelationType = "niece"
	RelationCousin        RelationType = "cousin"

	RelationFatherInLaw   RelationType = "father_in_law"
	RelationMotherInLaw   RelationType = "mother_in_law"
	RelationSonInLaw      RelationType = "son_in_law"
	RelationDaughterInLaw RelationType = "daughter_in_law"
	RelationBrotherInLaw  RelationType = "brother_in_law"
	RelationSisterInLaw   RelationType = "sister_in_law"

	RelationStepfather   RelationType = "stepfather"
	RelationStepmother   RelationType = "stepmother"
	RelationStepson      RelationType = "stepson"
	RelationStepdaughter RelationType = "stepdaughter"
)

// EdgeStatus is the lifecycle state of a relationship edge.
type EdgeStatus string

const (
	EdgePending  EdgeStatus = "pending"
	EdgeAccepted EdgeStatus = "accepted"
)

// Relationship is one directed, labeled edge. Edges are always stored in mirrored pairs.
type Relationship struct {
	ID        string       `json:"id"`
	SubjectID string       `json:"subject_id"`
	ObjectID  string       `json:"object_id"`
	Type      RelationType `json:"type"`
	Status    EdgeStatus   `json:"status"`
	// Automatic is set when the deduction engine wrote the edge.
	Automatic bool `json:"created_automatically"`
	// Tentative marks a label picked by convention because the holder's gender was unknown.
	Tentative bool      `json:"tentative"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAccepted reports whether the edge is an accepted fact.
func (r *Relationship) IsAccepted() bool {
	return r.Status == EdgeAccepted
}
