package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// RelationshipHandler handles the request workflow and graph maintenance.
type RelationshipHandler struct {
	persons   *services.PersonService
	requests  *services.RequestService
	deduction *services.DeductionService
	repair    *services.RepairService
	store     *services.EdgeStore
	refresh   *Refresher
}

// NewRelationshipHandler creates a new RelationshipHandler.
func NewRelationshipHandler(
	persons *services.PersonService,
	requests *services.RequestService,
	deduction *services.DeductionService,
	repair *services.RepairService,
	store *services.EdgeStore,
	refresh *Refresher,
) *RelationshipHandler {
	return &RelationshipHandler{
		persons:   persons,
		requests:  requests,
		deduction: deduction,
		repair:    repair,
		store:     store,
		refresh:   refresh,
	}
}

// ProposeResult contains a new request and its advisory warnings.
type ProposeResult struct {
	Request  *entities.RelationshipRequest `json:"request"`
	Warnings []entities.Warning            `json:"warnings,omitempty"`
}

// HandlePropose records that requester claims to be relation of target.
func (h *RelationshipHandler) HandlePropose(ctx context.Context, requesterRef, relation, targetRef string) (*ProposeResult, error) {
	code, err := kinship.Parse(relation)
	if err != nil {
		return nil, err
	}
	requester, err := h.persons.Resolve(ctx, requesterRef)
	if err != nil {
		return nil, err
	}
	target, err := h.persons.Resolve(ctx, targetRef)
	if err != nil {
		return nil, err
	}

	req, warnings, err := h.requests.Propose(ctx, requester.ID, target.ID, code)
	if err != nil {
		return nil, err
	}
	return &ProposeResult{Request: req, Warnings: warnings}, nil
}

// HandleAccept accepts a request on behalf of actor, the request's target.
func (h *RelationshipHandler) HandleAccept(ctx context.Context, requestID, actorRef string) (*services.AcceptResult, error) {
	actor, err := h.persons.Resolve(ctx, actorRef)
	if err != nil {
		return nil, err
	}
	result, err := h.requests.Accept(ctx, requestID, actor.ID)
	if err != nil {
		return nil, err
	}
	h.refresh.AfterAccept(ctx, result)
	return result, nil
}

// HandleDecline declines a request on behalf of actor, the request's target.
func (h *RelationshipHandler) HandleDecline(ctx context.Context, requestID, actorRef string) (*entities.RelationshipRequest, error) {
	actor, err := h.persons.Resolve(ctx, actorRef)
	if err != nil {
		return nil, err
	}
	return h.requests.Decline(ctx, requestID, actor.ID)
}

// HandleCancel withdraws a request on behalf of actor, the request's requester.
func (h *RelationshipHandler) HandleCancel(ctx context.Context, requestID, actorRef string) (*entities.RelationshipRequest, error) {
	actor, err := h.persons.Resolve(ctx, actorRef)
	if err != nil {
		return nil, err
	}
	return h.requests.Cancel(ctx, requestID, actor.ID)
}

// RequestInfo is a request with both parties resolved.
type RequestInfo struct {
	Request   entities.RelationshipRequest `json:"request"`
	Requester *entities.Person             `json:"requester,omitempty"`
	Target    *entities.Person             `json:"target,omitempty"`
	Incoming  bool                         `json:"incoming"`
}

// HandleRequests lists the requests a person sent or received. An empty status lists all.
func (h *RelationshipHandler) HandleRequests(ctx context.Context, personRef, status string) ([]RequestInfo, error) {
	person, err := h.persons.Resolve(ctx, personRef)
	if err != nil {
		return nil, err
	}
	st, err := parseRequestStatus(status)
	if err != nil {
		return nil, err
	}
	reqs, err := h.requests.ListFor(ctx, person.ID, st)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(reqs)*2)
	for i := range reqs {
		ids = append(ids, reqs[i].RequesterID, reqs[i].TargetID)
	}
	lookup, err := h.persons.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]RequestInfo, 0, len(reqs))
	for i := range reqs {
		out = append(out, RequestInfo{
			Request:   reqs[i],
			Requester: lookup[reqs[i].RequesterID],
			Target:    lookup[reqs[i].TargetID],
			Incoming:  reqs[i].TargetID == person.ID,
		})
	}
	return out, nil
}

// ListOptions configures relationship listing behavior.
type ListOptions struct {
	Type string // Filter by relationship type (empty = all)
}

// RelationInfo is one edge a person holds, with the other person resolved.
type RelationInfo struct {
	Relationship entities.Relationship `json:"relationship"`
	Other        *entities.Person      `json:"other,omitempty"`
}

// ListResult contains the result of listing relationships.
type ListResult struct {
	Person        *entities.Person `json:"person"`
	Relationships []RelationInfo   `json:"relationships"`
}

// HandleList returns the edges a person holds with optional filtering.
func (h *RelationshipHandler) HandleList(ctx context.Context, personRef string, opts ListOptions) (*ListResult, error) {
	person, err := h.persons.Resolve(ctx, personRef)
	if err != nil {
		return nil, err
	}

	relationships, err := h.store.EdgesOf(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("listing relationships: %w", err)
	}

	// Filter by type if specified
	if opts.Type != "" {
		code, err := kinship.Parse(opts.Type)
		if err != nil {
			return nil, err
		}
		filtered := make([]entities.Relationship, 0, len(relationships))
		for i := range relationships {
			if relationships[i].Type == code {
				filtered = append(filtered, relationships[i])
			}
		}
		relationships = filtered
	}

	ids := make([]string, 0, len(relationships))
	for i := range relationships {
		ids = append(ids, relationships[i].ObjectID)
	}
	lookup, err := h.persons.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := &ListResult{
		Person:        person,
		Relationships: make([]RelationInfo, 0, len(relationships)),
	}
	for i := range relationships {
		result.Relationships = append(result.Relationships, RelationInfo{
			Relationship: relationships[i],
			Other:        lookup[relationships[i].ObjectID],
		})
	}
	return result, nil
}

// HandleDeduce re-runs propagation for every edge a person holds.
func (h *RelationshipHandler) HandleDeduce(ctx context.Context, personRef string) (*services.DeductionResult, error) {
	person, err := h.persons.Resolve(ctx, personRef)
	if err != nil {
		return nil, err
	}
	result, err := h.deduction.Backfill(ctx, person.ID)
	if err != nil {
		return nil, err
	}
	if result.Written > 0 {
		h.refresh.Refresh(ctx, append([]string{person.ID}, result.Affected()...)...)
	}
	return result, nil
}

// HandleAudit reports consistency issues around a person.
func (h *RelationshipHandler) HandleAudit(ctx context.Context, personRef string) ([]services.Issue, error) {
	person, err := h.persons.Resolve(ctx, personRef)
	if err != nil {
		return nil, err
	}
	return h.repair.Audit(ctx, person.ID)
}

// HandleRepair fixes consistency issues around a person.
func (h *RelationshipHandler) HandleRepair(ctx context.Context, personRef string) (*services.RepairReport, error) {
	person, err := h.persons.Resolve(ctx, personRef)
	if err != nil {
		return nil, err
	}
	report, err := h.repair.Repair(ctx, person.ID)
	if err != nil {
		return nil, err
	}
	if report.Fixed > 0 {
		ids := []string{person.ID}
		for _, issue := range report.Issues {
			ids = append(ids, issue.Edge.SubjectID, issue.Edge.ObjectID)
		}
		h.refresh.Refresh(ctx, ids...)
	}
	return report, nil
}

func parseRequestStatus(s string) (entities.RequestStatus, error) {
	switch st := entities.RequestStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", entities.RequestPending, entities.RequestAccepted, entities.RequestDeclined, entities.RequestCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("invalid request status: %s (valid: pending, accepted, declined, cancelled)", s)
	}
}
