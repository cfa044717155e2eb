package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateRelation is returned when an edge or request already exists for a pair.
	ErrDuplicateRelation = errors.New("relationship already exists")

	// ErrDuplicateRequest is returned when a pending request already covers the pair.
	// It wraps ErrDuplicateRelation.
	ErrDuplicateRequest = fmt.Errorf("%w: a pending request already exists", ErrDuplicateRelation)

	// ErrInvalidType is returned for relationship codes outside the registry.
	ErrInvalidType = errors.New("invalid relationship type")

	// ErrSelfRelation is returned when subject and object are the same person.
	ErrSelfRelation = errors.New("a person cannot be related to themselves")

	// ErrInvalidTransition is returned when a request or suggestion is already resolved.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotAuthorized is returned when the actor may not perform a transition.
	ErrNotAuthorized = errors.New("actor is not allowed to perform this action")

	// ErrTypeRequired is returned when accepting an unlabeled suggestion without a code.
	ErrTypeRequired = errors.New("relationship type must be chosen")

	// ErrDuplicatePerson is returned when adding a person whose name is taken.
	ErrDuplicatePerson = errors.New("person already exists")

	ErrPersonNotFound     = errors.New("person not found")
	ErrRequestNotFound    = errors.New("request not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrEdgeNotFound       = errors.New("relationship not found")
)

// WarningKind classifies a non-fatal validation finding.
type WarningKind string

const (
	WarningGenderMismatch WarningKind = "gender_mismatch"
	WarningAgeImplausible WarningKind = "age_implausible"
)

// Warning is an advisory finding. It never blocks an explicit, user-confirmed write.
type Warning struct {
	Kind      WarningKind  `json:"kind"`
	Code      RelationType `json:"code"`
	SubjectID string       `json:"subject_id"`
	ObjectID  string       `json:"object_id"`
	Message   string       `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}
