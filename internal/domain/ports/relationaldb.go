package ports

import (
	"context"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// RelationalDB defines the persistence contract for the kinship graph.
// Uniqueness of (subject, object) edges and of pending (requester, target)
// requests is enforced here; it is the guard against concurrent duplicate writes.
type RelationalDB interface {
	// EnsureSchema creates the database schema if it doesn't exist.
	EnsureSchema(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// Person operations

	// SavePerson saves or updates a person.
	SavePerson(ctx context.Context, person *entities.Person) error

	// FindPersonByID finds a person by ID. Returns nil if not found.
	FindPersonByID(ctx context.Context, id string) (*entities.Person, error)

	// FindPersonByName finds a person by normalized name. Returns nil if not found.
	FindPersonByName(ctx context.Context, name string) (*entities.Person, error)

	// FindPersonsByIDs finds several persons in one query.
	FindPersonsByIDs(ctx context.Context, ids []string) ([]*entities.Person, error)

	// ListPersons lists persons ordered by name.
	ListPersons(ctx context.Context, limit, offset int) ([]*entities.Person, error)

	// Edge operations

	// SaveEdgePair writes both directions of a relationship atomically.
	// Returns entities.ErrDuplicateRelation if either direction already exists.
	SaveEdgePair(ctx context.Context, forward, reverse *entities.Relationship) error

	// SaveEdge writes a single direction, used to complete a half-written pair.
	// Returns entities.ErrDuplicateRelation if the direction already exists.
	SaveEdge(ctx context.Context, e *entities.Relationship) error

	// FindEdge finds the edge from subject to object. Returns nil if none exists.
	FindEdge(ctx context.Context, subjectID, objectID string) (*entities.Relationship, error)

	// FindEdgeByID finds an edge by ID. Returns nil if not found.
	FindEdgeByID(ctx context.Context, id string) (*entities.Relationship, error)

	// FindEdgesBySubject lists edges held by a person (person is subject).
	FindEdgesBySubject(ctx context.Context, subjectID string) ([]entities.Relationship, error)

	// FindEdgesByObject lists edges pointing at a person (person is object).
	FindEdgesByObject(ctx context.Context, objectID string) ([]entities.Relationship, error)

	// UpdateEdgeType relabels a single edge.
	UpdateEdgeType(ctx context.Context, id string, code entities.RelationType, tentative bool) error

	// DeleteEdgePair deletes both directions between two persons.
	DeleteEdgePair(ctx context.Context, aID, bID string) error

	// CountEdges returns the total number of edges.
	CountEdges(ctx context.Context) (int, error)

	// Request operations

	// CreateRequest inserts a new pending request.
	// Returns entities.ErrDuplicateRequest if a pending request exists for the ordered pair.
	CreateRequest(ctx context.Context, req *entities.RelationshipRequest) error

	// UpdateRequestStatus moves a request from one status to another.
	// Returns entities.ErrInvalidTransition if the request is no longer in status from.
	UpdateRequestStatus(ctx context.Context, req *entities.RelationshipRequest, from entities.RequestStatus) error

	// FindRequestByID finds a request by ID. Returns nil if not found.
	FindRequestByID(ctx context.Context, id string) (*entities.RelationshipRequest, error)

	// FindPendingRequest finds the pending request for an ordered pair. Returns nil if none.
	FindPendingRequest(ctx context.Context, requesterID, targetID string) (*entities.RelationshipRequest, error)

	// FindRequestsByPerson lists requests where the person is requester or target.
	// An empty status lists all statuses.
	FindRequestsByPerson(ctx context.Context, personID string, status entities.RequestStatus) ([]entities.RelationshipRequest, error)

	// Suggestion operations

	// ReplacePendingSuggestions atomically drops the owner's pending suggestions and stores the new set.
	ReplacePendingSuggestions(ctx context.Context, ownerID string, suggestions []entities.Suggestion) error

	// UpdateSuggestionStatus moves a suggestion from one status to another.
	// Returns entities.ErrInvalidTransition if the suggestion is no longer in status from.
	UpdateSuggestionStatus(ctx context.Context, id string, from, to entities.SuggestionStatus) error

	// FindSuggestionByID finds a suggestion by ID. Returns nil if not found.
	FindSuggestionByID(ctx context.Context, id string) (*entities.Suggestion, error)

	// FindSuggestionsByOwner lists an owner's suggestions, best first.
	// An empty status lists all statuses.
	FindSuggestionsByOwner(ctx context.Context, ownerID string, status entities.SuggestionStatus) ([]entities.Suggestion, error)

	// Audit operations

	// LogAction logs an action to the audit log.
	LogAction(ctx context.Context, action string, personID string, details map[string]any) error

	// FindAuditLog finds audit log entries for a person.
	FindAuditLog(ctx context.Context, personID string) ([]entities.AuditEntry, error)
}
