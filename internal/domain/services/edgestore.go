// Package services contains domain business logic.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// timeNow is a variable for testing purposes.
var timeNow = time.Now

// EdgeStore writes relationship edges. Edges only ever enter the store as
// mirrored pairs; there is no way to write a single direction.
type EdgeStore struct {
	db       ports.RelationalDB
	profiles ports.Profiles
	guesser  ports.GenderGuesser
}

// NewEdgeStore creates a new EdgeStore. profiles may be nil, in which case persons
// are read from db. guesser may be nil.
func NewEdgeStore(db ports.RelationalDB, profiles ports.Profiles, guesser ports.GenderGuesser) *EdgeStore {
	if profiles == nil {
		profiles = db
	}
	return &EdgeStore{db: db, profiles: profiles, guesser: guesser}
}

// CreateMirroredPair records subject as code of object together with the inverse edge.
// It returns the forward edge, or ErrDuplicateRelation when either direction exists.
func (s *EdgeStore) CreateMirroredPair(
	ctx context.Context,
	subjectID, objectID string,
	code entities.RelationType,
	automatic bool,
) (*entities.Relationship, error) {
	if subjectID == objectID {
		return nil, entities.ErrSelfRelation
	}
	if !kinship.IsValid(code) {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidType, code)
	}

	if _, err := s.Person(ctx, subjectID); err != nil {
		return nil, err
	}
	object, err := s.Person(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return s.writePair(ctx, subjectID, object, code, false, automatic)
}

// RestoreMirror writes the missing inverse of a half-written pair. The restored
// edge keeps the surviving edge's CreatedAt and Automatic values so marriage
// timing reads the same after the repair.
func (s *EdgeStore) RestoreMirror(ctx context.Context, surviving *entities.Relationship) (*entities.Relationship, error) {
	if _, err := s.Person(ctx, surviving.SubjectID); err != nil {
		return nil, err
	}
	holder, err := s.Person(ctx, surviving.ObjectID)
	if err != nil {
		return nil, err
	}

	inverse, tentative, err := kinship.Inverse(surviving.Type, entities.GenderOf(holder))
	if err != nil {
		return nil, fmt.Errorf("computing inverse: %w", err)
	}
	if tentative {
		inverse = s.guessInverse(surviving.Type, holder, inverse)
	}

	mirror := &entities.Relationship{
		ID:        uuid.New().String(),
		SubjectID: holder.ID,
		ObjectID:  surviving.SubjectID,
		Type:      inverse,
		Status:    surviving.Status,
		Automatic: surviving.Automatic,
		Tentative: tentative,
		CreatedAt: surviving.CreatedAt,
	}
	if err := s.db.SaveEdge(ctx, mirror); err != nil {
		if errors.Is(err, entities.ErrDuplicateRelation) {
			return nil, err
		}
		return nil, fmt.Errorf("saving mirror edge: %w", err)
	}
	return mirror, nil
}

// CreateRolePair records subject in role to object. The label is picked from the
// subject's gender and is tentative when that gender is unknown.
func (s *EdgeStore) CreateRolePair(
	ctx context.Context,
	subject, object *entities.Person,
	role kinship.Role,
	automatic bool,
) (*entities.Relationship, error) {
	if subject.ID == object.ID {
		return nil, entities.ErrSelfRelation
	}
	code, tentative := s.LabelFor(role, subject)
	if code == "" {
		return nil, fmt.Errorf("%w: role %q", entities.ErrInvalidType, role)
	}
	return s.writePair(ctx, subject.ID, object, code, tentative, automatic)
}

// LabelFor returns the code holder carries for role, consulting the gender
// heuristic when the declared gender is unknown.
func (s *EdgeStore) LabelFor(role kinship.Role, holder *entities.Person) (entities.RelationType, bool) {
	code, tentative := kinship.CodeFor(role, entities.GenderOf(holder))
	if !tentative || s.guesser == nil || holder == nil {
		return code, tentative
	}
	if guessed := s.guesser.GuessGender(holder.Name); guessed.Known() {
		code, _ = kinship.CodeFor(role, guessed)
	}
	return code, true
}

func (s *EdgeStore) writePair(
	ctx context.Context,
	subjectID string,
	object *entities.Person,
	code entities.RelationType,
	tentative bool,
	automatic bool,
) (*entities.Relationship, error) {
	inverse, inverseTentative, err := kinship.Inverse(code, entities.GenderOf(object))
	if err != nil {
		return nil, fmt.Errorf("computing inverse: %w", err)
	}
	if inverseTentative {
		inverse = s.guessInverse(code, object, inverse)
	}

	now := timeNow()
	forward := &entities.Relationship{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		ObjectID:  object.ID,
		Type:      code,
		Status:    entities.EdgeAccepted,
		Automatic: automatic,
		Tentative: tentative,
		CreatedAt: now,
	}
	reverse := &entities.Relationship{
		ID:        uuid.New().String(),
		SubjectID: object.ID,
		ObjectID:  subjectID,
		Type:      inverse,
		Status:    entities.EdgeAccepted,
		Automatic: automatic,
		Tentative: inverseTentative,
		CreatedAt: now,
	}

	if err := s.db.SaveEdgePair(ctx, forward, reverse); err != nil {
		if errors.Is(err, entities.ErrDuplicateRelation) {
			return nil, err
		}
		return nil, fmt.Errorf("saving edge pair: %w", err)
	}
	return forward, nil
}

// guessInverse picks the tentative inverse label using the name heuristic.
func (s *EdgeStore) guessInverse(code entities.RelationType, object *entities.Person, fallback entities.RelationType) entities.RelationType {
	if s.guesser == nil {
		return fallback
	}
	guessed := s.guesser.GuessGender(object.Name)
	if !guessed.Known() {
		return fallback
	}
	inverse, _, err := kinship.Inverse(code, guessed)
	if err != nil {
		return fallback
	}
	return inverse
}

// Find returns the edge from subject to object, or nil.
func (s *EdgeStore) Find(ctx context.Context, subjectID, objectID string) (*entities.Relationship, error) {
	edge, err := s.db.FindEdge(ctx, subjectID, objectID)
	if err != nil {
		return nil, fmt.Errorf("finding edge: %w", err)
	}
	return edge, nil
}

// EdgesOf returns the edges a person holds, that is where the person is the subject.
func (s *EdgeStore) EdgesOf(ctx context.Context, personID string) ([]entities.Relationship, error) {
	edges, err := s.db.FindEdgesBySubject(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("listing edges: %w", err)
	}
	return edges, nil
}

// EdgesTo returns the edges pointing at a person.
func (s *EdgeStore) EdgesTo(ctx context.Context, personID string) ([]entities.Relationship, error) {
	edges, err := s.db.FindEdgesByObject(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("listing incoming edges: %w", err)
	}
	return edges, nil
}

// Person returns a person by id, or ErrPersonNotFound.
func (s *EdgeStore) Person(ctx context.Context, id string) (*entities.Person, error) {
	p, err := s.profiles.FindPersonByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding person: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrPersonNotFound, id)
	}
	return p, nil
}
