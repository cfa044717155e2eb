package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
)

// propagationRounds bounds one pass: local composition plus one closure hop.
const propagationRounds = 2

// DeductionResult summarizes one propagation pass.
type DeductionResult struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Edges holds the forward edges written, in write order.
	Edges []entities.Relationship `json:"edges,omitempty"`
}

// Affected returns the ids of everyone touched by a written edge.
func (r *DeductionResult) Affected() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.Edges {
		for _, id := range []string{e.SubjectID, e.ObjectID} {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (r *DeductionResult) add(other *DeductionResult) {
	r.Written += other.Written
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Edges = append(r.Edges, other.Edges...)
}

// candidate is one entailed edge: holder is role of object.
type candidate struct {
	holderID string
	objectID string
	role     kinship.Role
}

// DeductionService derives edges that follow from accepted ones.
type DeductionService struct {
	store     *EdgeStore
	validator *Validator
	log       *logrus.Entry
}

// NewDeductionService creates a new DeductionService.
func NewDeductionService(store *EdgeStore, validator *Validator, log *logrus.Entry) *DeductionService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DeductionService{
		store:     store,
		validator: validator,
		log:       log.WithField("component", "deduction"),
	}
}

// PropagateByID runs Propagate for a stored edge.
func (s *DeductionService) PropagateByID(ctx context.Context, edgeID string) (*DeductionResult, error) {
	edge, err := s.store.db.FindEdgeByID(ctx, edgeID)
	if err != nil {
		return nil, fmt.Errorf("finding seed edge: %w", err)
	}
	if edge == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrEdgeNotFound, edgeID)
	}
	return s.Propagate(ctx, edge)
}

// Propagate derives the edges entailed by seed and its mirror. Round one composes
// the seed with the neighbors of both endpoints; round two repeats that for the
// edges written in round one and stops. Individual derivation failures are
// logged and counted, never returned.
func (s *DeductionService) Propagate(ctx context.Context, seed *entities.Relationship) (*DeductionResult, error) {
	start := time.Now()
	defer func() { metrics.propagationDuration.Observe(time.Since(start).Seconds()) }()

	result := &DeductionResult{}
	frontier := []entities.Relationship{*seed}
	mirror, err := s.store.Find(ctx, seed.ObjectID, seed.SubjectID)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		frontier = append(frontier, *mirror)
	}

	for round := 1; round <= propagationRounds && len(frontier) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		written := s.round(ctx, frontier, result)
		frontier = frontier[:0]
		for _, e := range written {
			frontier = append(frontier, e)
			if m, err := s.store.Find(ctx, e.ObjectID, e.SubjectID); err == nil && m != nil {
				frontier = append(frontier, *m)
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"subject": seed.SubjectID,
		"object":  seed.ObjectID,
		"code":    seed.Type,
		"written": result.Written,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	}).Debug("Propagation finished")
	return result, nil
}

// Backfill re-runs propagation for every edge a person holds.
func (s *DeductionService) Backfill(ctx context.Context, personID string) (*DeductionResult, error) {
	edges, err := s.store.EdgesOf(ctx, personID)
	if err != nil {
		return nil, err
	}
	total := &DeductionResult{}
	for i := range edges {
		r, err := s.Propagate(ctx, &edges[i])
		if err != nil {
			return total, fmt.Errorf("propagating %s: %w", edges[i].ID, err)
		}
		total.add(r)
	}
	return total, nil
}

// round composes each seed (A, B, T) with the edges into A and out of B and
// writes the accepted candidates. It returns the forward edges written.
func (s *DeductionService) round(ctx context.Context, seeds []entities.Relationship, result *DeductionResult) []entities.Relationship {
	var written []entities.Relationship
	for i := range seeds {
		seed := seeds[i]

		incoming, err := s.store.EdgesTo(ctx, seed.SubjectID)
		if err != nil {
			s.fail(result, seed, err)
			continue
		}
		for j := range incoming {
			in := incoming[j]
			if in.SubjectID == seed.ObjectID || !in.IsAccepted() {
				continue
			}
			// in.Subject is in.Type of A, A is seed.Type of B.
			if e := s.derive(ctx, &in, &seed, in.SubjectID, seed.ObjectID, result); e != nil {
				written = append(written, *e)
			}
		}

		outgoing, err := s.store.EdgesOf(ctx, seed.ObjectID)
		if err != nil {
			s.fail(result, seed, err)
			continue
		}
		for j := range outgoing {
			out := outgoing[j]
			if out.ObjectID == seed.SubjectID || !out.IsAccepted() {
				continue
			}
			// A is seed.Type of B, B is out.Type of Y.
			if e := s.derive(ctx, &seed, &out, seed.SubjectID, out.ObjectID, result); e != nil {
				written = append(written, *e)
			}
		}
	}
	return written
}

// derive composes ab and bc into a candidate edge from holderID to objectID and
// writes it when every check passes.
func (s *DeductionService) derive(
	ctx context.Context,
	ab, bc *entities.Relationship,
	holderID, objectID string,
	result *DeductionResult,
) *entities.Relationship {
	role, ok := kinship.Compose(ab.Type, bc.Type)
	if !ok {
		s.skip(result, reasonUndefined, nil)
		return nil
	}
	role = applyMarriageTiming(role, ab, bc)
	c := candidate{holderID: holderID, objectID: objectID, role: role}

	fields := logrus.Fields{"subject": holderID, "object": objectID, "role": role}
	if holderID == objectID {
		s.skip(result, reasonSelf, nil)
		return nil
	}
	if !kinship.Derivable(role) {
		s.skip(result, reasonNotDerivable, nil)
		return nil
	}

	exists, err := s.validator.WouldDuplicate(ctx, holderID, objectID)
	if err != nil {
		s.failCandidate(result, fields, err)
		return nil
	}
	if exists {
		s.skip(result, reasonDuplicate, nil)
		return nil
	}

	holder, err := s.store.Person(ctx, holderID)
	if err != nil {
		s.skipOrFail(result, fields, err)
		return nil
	}
	object, err := s.store.Person(ctx, objectID)
	if err != nil {
		s.skipOrFail(result, fields, err)
		return nil
	}

	reason, err := s.check(ctx, c, holder, object)
	if err != nil {
		s.failCandidate(result, fields, err)
		return nil
	}
	if reason != "" {
		s.skip(result, reason, fields)
		return nil
	}

	edge, err := s.store.CreateRolePair(ctx, holder, object, role, true)
	if err != nil {
		if errors.Is(err, entities.ErrDuplicateRelation) {
			s.skip(result, reasonDuplicate, nil)
			return nil
		}
		s.failCandidate(result, fields, err)
		return nil
	}

	metrics.derivedTotal.Inc()
	result.Written++
	result.Edges = append(result.Edges, *edge)
	s.log.WithFields(fields).WithField("code", edge.Type).Debug("Derived relationship")
	return edge
}

// check runs the gates an automatic write must pass. It returns the skip reason, or "".
func (s *DeductionService) check(ctx context.Context, c candidate, holder, object *entities.Person) (string, error) {
	code, _ := kinship.CodeFor(c.role, entities.GenderOf(holder))
	if !s.validator.AgeIsPlausible(code, holder, object) {
		return reasonAge, nil
	}

	switch {
	case c.role == kinship.RoleSibling:
		ok, err := SharesParent(ctx, s.store, holder.ID, object.ID)
		if err != nil {
			return "", err
		}
		if !ok {
			return reasonUnjustified, nil
		}
	case c.role == kinship.RoleParent:
		clash, err := s.hasOtherParent(ctx, holder, object.ID)
		if err != nil || clash {
			return reasonContradiction, err
		}
	case c.role == kinship.RoleChild:
		clash, err := s.hasOtherParent(ctx, object, holder.ID)
		if err != nil || clash {
			return reasonContradiction, err
		}
	}
	return "", nil
}

// SharesParent reports whether a and b have a common accepted biological parent.
func SharesParent(ctx context.Context, store *EdgeStore, a, b string) (bool, error) {
	parents, err := store.EdgesTo(ctx, a)
	if err != nil {
		return false, err
	}
	for _, p := range parents {
		if !p.IsAccepted() || kinship.RoleOf(p.Type) != kinship.RoleParent {
			continue
		}
		other, err := store.Find(ctx, p.SubjectID, b)
		if err != nil {
			return false, err
		}
		if other != nil && other.IsAccepted() && kinship.RoleOf(other.Type) == kinship.RoleParent {
			return true, nil
		}
	}
	return false, nil
}

// hasOtherParent reports whether child already has a parent of parent's gender.
// Parents of unknown gender never clash.
func (s *DeductionService) hasOtherParent(ctx context.Context, parent *entities.Person, childID string) (bool, error) {
	gender := entities.GenderOf(parent)
	if !gender.Known() {
		return false, nil
	}
	want, _ := kinship.CodeFor(kinship.RoleParent, gender)
	incoming, err := s.store.EdgesTo(ctx, childID)
	if err != nil {
		return false, err
	}
	for _, e := range incoming {
		if e.SubjectID != parent.ID && e.Type == want && e.IsAccepted() && !e.Tentative {
			return true, nil
		}
	}
	return false, nil
}

// applyMarriageTiming settles parent and child roles reached through a marriage:
// a marriage recorded no later than the parent edge yields the biological role,
// a later one yields the step role.
func applyMarriageTiming(role kinship.Role, ab, bc *entities.Relationship) kinship.Role {
	if !kinship.IsParentRole(role) && !kinship.IsChildRole(role) {
		return role
	}
	var marriage, other *entities.Relationship
	switch {
	case kinship.RoleOf(ab.Type) == kinship.RoleSpouse:
		marriage, other = ab, bc
	case kinship.RoleOf(bc.Type) == kinship.RoleSpouse:
		marriage, other = bc, ab
	default:
		return role
	}
	if !marriage.CreatedAt.After(other.CreatedAt) {
		return kinship.BiologicalVariant(role)
	}
	return kinship.StepVariant(role)
}

func (s *DeductionService) skip(result *DeductionResult, reason string, fields logrus.Fields) {
	result.Skipped++
	metrics.derivationsSkipped.WithLabelValues(reason).Inc()
	if fields != nil {
		s.log.WithFields(fields).WithField("reason", reason).Info("Suppressed derivation")
	}
}

func (s *DeductionService) skipOrFail(result *DeductionResult, fields logrus.Fields, err error) {
	if errors.Is(err, entities.ErrPersonNotFound) {
		s.skip(result, reasonMissingPerson, fields)
		return
	}
	s.failCandidate(result, fields, err)
}

func (s *DeductionService) failCandidate(result *DeductionResult, fields logrus.Fields, err error) {
	result.Failed++
	metrics.derivationsFailed.Inc()
	s.log.WithFields(fields).WithError(err).Warn("Derivation failed")
}

func (s *DeductionService) fail(result *DeductionResult, seed entities.Relationship, err error) {
	s.failCandidate(result, logrus.Fields{"subject": seed.SubjectID, "object": seed.ObjectID, "code": seed.Type}, err)
}
