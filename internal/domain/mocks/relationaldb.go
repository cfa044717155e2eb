package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// RelationalDB is an in-memory implementation of ports.RelationalDB.
// It enforces the same uniqueness rules as the SQLite repository.
type RelationalDB struct {
	mu sync.Mutex

	Persons     map[string]*entities.Person
	Edges       map[string]*entities.Relationship
	pairs       map[[2]string]string
	Requests    map[string]*entities.RelationshipRequest
	Suggestions map[string]*entities.Suggestion
	Audit       []entities.AuditEntry

	// Err, when set, is returned by every operation.
	Err error
	// SaveEdgePairErr, when set, is returned by SaveEdgePair only.
	SaveEdgePairErr error
	// SaveEdgeErr, when set, is returned by SaveEdge only.
	SaveEdgeErr error
	// OnSaveEdgePair, when set, runs at the start of SaveEdgePair without the lock held.
	OnSaveEdgePair func()
}

// NewRelationalDB creates a new mock RelationalDB.
func NewRelationalDB() *RelationalDB {
	return &RelationalDB{
		Persons:     make(map[string]*entities.Person),
		Edges:       make(map[string]*entities.Relationship),
		pairs:       make(map[[2]string]string),
		Requests:    make(map[string]*entities.RelationshipRequest),
		Suggestions: make(map[string]*entities.Suggestion),
	}
}

// EnsureSchema creates the database schema if it doesn't exist.
func (m *RelationalDB) EnsureSchema(_ context.Context) error {
	return m.Err
}

// Close closes the database connection.
func (m *RelationalDB) Close() error {
	return nil
}

// Person methods.

// SavePerson saves or updates a person.
func (m *RelationalDB) SavePerson(_ context.Context, p *entities.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *p
	if cp.NormalizedName == "" {
		cp.NormalizedName = entities.NormalizeName(cp.Name)
	}
	m.Persons[p.ID] = &cp
	return nil
}

// FindPersonByID finds a person by ID.
func (m *RelationalDB) FindPersonByID(_ context.Context, id string) (*entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Persons[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// FindPersonByName finds a person by normalized name.
func (m *RelationalDB) FindPersonByName(_ context.Context, name string) (*entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	norm := entities.NormalizeName(name)
	for _, p := range m.Persons {
		if p.NormalizedName == norm {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// FindPersonsByIDs finds several persons.
func (m *RelationalDB) FindPersonsByIDs(_ context.Context, ids []string) ([]*entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]*entities.Person, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.Persons[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListPersons lists persons ordered by name.
func (m *RelationalDB) ListPersons(_ context.Context, limit, offset int) ([]*entities.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]*entities.Person, 0, len(m.Persons))
	for _, p := range m.Persons {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if offset >= len(out) {
		return []*entities.Person{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Edge methods.

// SaveEdgePair writes both directions or neither.
func (m *RelationalDB) SaveEdgePair(_ context.Context, forward, reverse *entities.Relationship) error {
	if m.OnSaveEdgePair != nil {
		m.OnSaveEdgePair()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.SaveEdgePairErr != nil {
		return m.SaveEdgePairErr
	}
	for _, e := range []*entities.Relationship{forward, reverse} {
		if _, exists := m.pairs[[2]string{e.SubjectID, e.ObjectID}]; exists {
			return fmt.Errorf("saving edge %s -> %s: %w", e.SubjectID, e.ObjectID, entities.ErrDuplicateRelation)
		}
	}
	for _, e := range []*entities.Relationship{forward, reverse} {
		cp := *e
		m.Edges[e.ID] = &cp
		m.pairs[[2]string{e.SubjectID, e.ObjectID}] = e.ID
	}
	return nil
}

// SaveEdge writes a single direction.
func (m *RelationalDB) SaveEdge(_ context.Context, e *entities.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.SaveEdgeErr != nil {
		return m.SaveEdgeErr
	}
	key := [2]string{e.SubjectID, e.ObjectID}
	if _, exists := m.pairs[key]; exists {
		return fmt.Errorf("saving edge %s -> %s: %w", e.SubjectID, e.ObjectID, entities.ErrDuplicateRelation)
	}
	cp := *e
	m.Edges[e.ID] = &cp
	m.pairs[key] = e.ID
	return nil
}

// FindEdge finds the edge from subject to object.
func (m *RelationalDB) FindEdge(_ context.Context, subjectID, objectID string) (*entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	id, ok := m.pairs[[2]string{subjectID, objectID}]
	if !ok {
		return nil, nil
	}
	cp := *m.Edges[id]
	return &cp, nil
}

// FindEdgeByID finds an edge by ID.
func (m *RelationalDB) FindEdgeByID(_ context.Context, id string) (*entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.Edges[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// FindEdgesBySubject lists edges held by a person.
func (m *RelationalDB) FindEdgesBySubject(_ context.Context, subjectID string) ([]entities.Relationship, error) {
	return m.filterEdges(func(e *entities.Relationship) bool { return e.SubjectID == subjectID })
}

// FindEdgesByObject lists edges pointing at a person.
func (m *RelationalDB) FindEdgesByObject(_ context.Context, objectID string) ([]entities.Relationship, error) {
	return m.filterEdges(func(e *entities.Relationship) bool { return e.ObjectID == objectID })
}

func (m *RelationalDB) filterEdges(keep func(*entities.Relationship) bool) ([]entities.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]entities.Relationship, 0, 8)
	for _, e := range m.Edges {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateEdgeType relabels a single edge.
func (m *RelationalDB) UpdateEdgeType(_ context.Context, id string, code entities.RelationType, tentative bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	e, ok := m.Edges[id]
	if !ok {
		return fmt.Errorf("%w: %s", entities.ErrEdgeNotFound, id)
	}
	e.Type = code
	e.Tentative = tentative
	return nil
}

// DeleteEdgePair deletes both directions between two persons.
func (m *RelationalDB) DeleteEdgePair(_ context.Context, aID, bID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, key := range [][2]string{{aID, bID}, {bID, aID}} {
		if id, ok := m.pairs[key]; ok {
			delete(m.Edges, id)
			delete(m.pairs, key)
		}
	}
	return nil
}

// CountEdges returns the total number of edges.
func (m *RelationalDB) CountEdges(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Edges), m.Err
}

// RemoveEdge deletes a single direction, leaving a half-written pair. Test helper only.
func (m *RelationalDB) RemoveEdge(subjectID, objectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{subjectID, objectID}
	if id, ok := m.pairs[key]; ok {
		delete(m.Edges, id)
		delete(m.pairs, key)
	}
}

// Request methods.

// CreateRequest inserts a new pending request.
func (m *RelationalDB) CreateRequest(_ context.Context, req *entities.RelationshipRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, r := range m.Requests {
		if r.Status == entities.RequestPending && r.RequesterID == req.RequesterID && r.TargetID == req.TargetID {
			return entities.ErrDuplicateRequest
		}
	}
	cp := *req
	m.Requests[req.ID] = &cp
	return nil
}

// UpdateRequestStatus moves a request from one status to another.
func (m *RelationalDB) UpdateRequestStatus(_ context.Context, req *entities.RelationshipRequest, from entities.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	stored, ok := m.Requests[req.ID]
	if !ok || stored.Status != from {
		return entities.ErrInvalidTransition
	}
	stored.Status = req.Status
	stored.RespondedAt = req.RespondedAt
	return nil
}

// FindRequestByID finds a request by ID.
func (m *RelationalDB) FindRequestByID(_ context.Context, id string) (*entities.RelationshipRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.Requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// FindPendingRequest finds the pending request for an ordered pair.
func (m *RelationalDB) FindPendingRequest(_ context.Context, requesterID, targetID string) (*entities.RelationshipRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, r := range m.Requests {
		if r.Status == entities.RequestPending && r.RequesterID == requesterID && r.TargetID == targetID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

// FindRequestsByPerson lists requests involving a person.
func (m *RelationalDB) FindRequestsByPerson(_ context.Context, personID string, status entities.RequestStatus) ([]entities.RelationshipRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]entities.RelationshipRequest, 0, 4)
	for _, r := range m.Requests {
		if r.RequesterID != personID && r.TargetID != personID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Suggestion methods.

// ReplacePendingSuggestions drops the owner's pending suggestions and stores the new set.
func (m *RelationalDB) ReplacePendingSuggestions(_ context.Context, ownerID string, suggestions []entities.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for id, s := range m.Suggestions {
		if s.OwnerID == ownerID && s.Status == entities.SuggestionPending {
			delete(m.Suggestions, id)
		}
	}
	for i := range suggestions {
		cp := suggestions[i]
		m.Suggestions[cp.ID] = &cp
	}
	return nil
}

// UpdateSuggestionStatus moves a suggestion from one status to another.
func (m *RelationalDB) UpdateSuggestionStatus(_ context.Context, id string, from, to entities.SuggestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	s, ok := m.Suggestions[id]
	if !ok || s.Status != from {
		return entities.ErrInvalidTransition
	}
	s.Status = to
	return nil
}

// FindSuggestionByID finds a suggestion by ID.
func (m *RelationalDB) FindSuggestionByID(_ context.Context, id string) (*entities.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.Suggestions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// FindSuggestionsByOwner lists an owner's suggestions, best first.
func (m *RelationalDB) FindSuggestionsByOwner(_ context.Context, ownerID string, status entities.SuggestionStatus) ([]entities.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]entities.Suggestion, 0, 8)
	for _, s := range m.Suggestions {
		if s.OwnerID != ownerID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out, nil
}

// Audit methods.

// LogAction logs an action to the audit log.
func (m *RelationalDB) LogAction(_ context.Context, action string, personID string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Audit = append(m.Audit, entities.AuditEntry{
		ID:        int64(len(m.Audit) + 1),
		Action:    action,
		PersonID:  personID,
		Details:   details,
		CreatedAt: time.Now(),
	})
	return nil
}

// FindAuditLog finds audit log entries for a person.
func (m *RelationalDB) FindAuditLog(_ context.Context, personID string) ([]entities.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []entities.AuditEntry
	for _, e := range m.Audit {
		if e.PersonID == personID {
			out = append(out, e)
		}
	}
	return out, nil
}
