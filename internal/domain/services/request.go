package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// AcceptResult is returned when a request is accepted.
type AcceptResult struct {
	Request *entities.RelationshipRequest `json:"request"`
	Edge    *entities.Relationship        `json:"edge"`
	// Deduction is nil when propagation was deferred to the task queue.
	Deduction *DeductionResult `json:"deduction,omitempty"`
	Deferred  bool             `json:"deferred"`
}

// RequestService runs the consent-gated request workflow.
type RequestService struct {
	db        ports.RelationalDB
	store     *EdgeStore
	validator *Validator
	deduction *DeductionService
	queue     ports.TaskQueue
	events    ports.EventPublisher
	async     bool
	log       *logrus.Entry
}

// RequestServiceOption configures a RequestService.
type RequestServiceOption func(*RequestService)

// WithTaskQueue defers propagation and suggestion regeneration to queue.
// When async is false the queue only receives suggestion jobs.
func WithTaskQueue(queue ports.TaskQueue, async bool) RequestServiceOption {
	return func(s *RequestService) {
		s.queue = queue
		s.async = async
	}
}

// WithEventPublisher publishes domain events after transitions.
func WithEventPublisher(events ports.EventPublisher) RequestServiceOption {
	return func(s *RequestService) {
		s.events = events
	}
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	db ports.RelationalDB,
	store *EdgeStore,
	validator *Validator,
	deduction *DeductionService,
	log *logrus.Entry,
	opts ...RequestServiceOption,
) *RequestService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &RequestService{
		db:        db,
		store:     store,
		validator: validator,
		deduction: deduction,
		log:       log.WithField("component", "requests"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose records that requester claims to be code of target. The request stays
// pending until the target accepts. Warnings are advisory and never block.
func (s *RequestService) Propose(
	ctx context.Context,
	requesterID, targetID string,
	code entities.RelationType,
) (*entities.RelationshipRequest, []entities.Warning, error) {
	if !kinship.IsValid(code) {
		return nil, nil, fmt.Errorf("%w: %q", entities.ErrInvalidType, code)
	}
	if requesterID == targetID {
		return nil, nil, entities.ErrSelfRelation
	}

	requester, err := s.store.Person(ctx, requesterID)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.store.Person(ctx, targetID)
	if err != nil {
		return nil, nil, err
	}

	pending, err := s.db.FindPendingRequest(ctx, requesterID, targetID)
	if err != nil {
		return nil, nil, fmt.Errorf("checking pending request: %w", err)
	}
	if pending != nil {
		return nil, nil, entities.ErrDuplicateRequest
	}

	exists, err := s.validator.WouldDuplicate(ctx, requesterID, targetID)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, fmt.Errorf("%w: %s and %s are already related", entities.ErrDuplicateRelation, requester.Name, target.Name)
	}

	req := &entities.RelationshipRequest{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		TargetID:    targetID,
		Type:        code,
		Status:      entities.RequestPending,
		CreatedAt:   timeNow(),
	}
	if err := s.db.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, entities.ErrDuplicateRelation) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("saving request: %w", err)
	}
	metrics.requestTransitions.WithLabelValues(string(entities.RequestPending)).Inc()

	return req, s.validator.Check(code, requester, target), nil
}

// Accept confirms a request on behalf of its target. The request moves to
// accepted before the mirrored pair is written, so a concurrent cancel or
// decline either wins outright or finds the request already resolved. A failed
// write moves the request back to pending. Propagation then runs inline or
// through the task queue.
func (s *RequestService) Accept(ctx context.Context, requestID, actorID string) (*AcceptResult, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.TargetID != actorID {
		return nil, fmt.Errorf("%w: only the target may accept", entities.ErrNotAuthorized)
	}
	if err := s.transition(ctx, req, entities.RequestAccepted); err != nil {
		return nil, err
	}

	edge, err := s.store.CreateMirroredPair(ctx, req.RequesterID, req.TargetID, req.Type, false)
	if errors.Is(err, entities.ErrDuplicateRelation) {
		// Deduction may have recorded the pair after the proposal.
		existing, findErr := s.store.Find(ctx, req.RequesterID, req.TargetID)
		if findErr == nil && existing != nil {
			s.log.WithFields(logrus.Fields{
				"request": req.ID,
				"edge":    existing.ID,
			}).Info("Relationship already recorded, request accepted")
			return &AcceptResult{Request: req, Edge: existing}, nil
		}
	}
	if err != nil {
		s.reopen(ctx, req)
		if errors.Is(err, entities.ErrDuplicateRelation) {
			return nil, err
		}
		return nil, fmt.Errorf("creating relationship: %w", err)
	}

	result := &AcceptResult{Request: req, Edge: edge}
	if s.async && s.queue != nil {
		if err := s.queue.Enqueue(ctx, entities.Job{Kind: entities.JobDeduce, PersonID: edge.SubjectID, EdgeID: edge.ID}); err != nil {
			s.log.WithError(err).WithField("edge", edge.ID).Warn("Enqueue failed, propagating inline")
		} else {
			result.Deferred = true
		}
	}
	if !result.Deferred {
		d, err := s.deduction.Propagate(ctx, edge)
		if err != nil {
			s.log.WithError(err).WithField("edge", edge.ID).Warn("Propagation aborted")
		}
		result.Deduction = d
	}

	s.enqueueSuggestions(ctx, result)
	s.publish(ctx, entities.RelationshipAccepted(edge.SubjectID, edge.ObjectID, edge.Type, timeNow()))
	return result, nil
}

// Decline rejects a request on behalf of its target. The graph is untouched.
func (s *RequestService) Decline(ctx context.Context, requestID, actorID string) (*entities.RelationshipRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.TargetID != actorID {
		return nil, fmt.Errorf("%w: only the target may decline", entities.ErrNotAuthorized)
	}
	if err := s.transition(ctx, req, entities.RequestDeclined); err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel withdraws a request on behalf of its requester. The graph is untouched.
func (s *RequestService) Cancel(ctx context.Context, requestID, actorID string) (*entities.RelationshipRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID {
		return nil, fmt.Errorf("%w: only the requester may cancel", entities.ErrNotAuthorized)
	}
	if err := s.transition(ctx, req, entities.RequestCancelled); err != nil {
		return nil, err
	}
	return req, nil
}

// ListFor returns the requests a person sent or received.
func (s *RequestService) ListFor(ctx context.Context, personID string, status entities.RequestStatus) ([]entities.RelationshipRequest, error) {
	reqs, err := s.db.FindRequestsByPerson(ctx, personID, status)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	return reqs, nil
}

func (s *RequestService) load(ctx context.Context, id string) (*entities.RelationshipRequest, error) {
	req, err := s.db.FindRequestByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrRequestNotFound, id)
	}
	return req, nil
}

func (s *RequestService) transition(ctx context.Context, req *entities.RelationshipRequest, to entities.RequestStatus) error {
	if req.IsTerminal() {
		return fmt.Errorf("%w: request is %s", entities.ErrInvalidTransition, req.Status)
	}
	from := req.Status
	now := timeNow()
	req.Status = to
	req.RespondedAt = &now
	if err := s.db.UpdateRequestStatus(ctx, req, from); err != nil {
		req.Status = from
		req.RespondedAt = nil
		if errors.Is(err, entities.ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("updating request: %w", err)
	}
	metrics.requestTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

// reopen moves an accepted request back to pending after its pair could not be written.
func (s *RequestService) reopen(ctx context.Context, req *entities.RelationshipRequest) {
	accepted := req.Status
	req.Status = entities.RequestPending
	req.RespondedAt = nil
	if err := s.db.UpdateRequestStatus(context.WithoutCancel(ctx), req, accepted); err != nil {
		s.log.WithError(err).WithField("request", req.ID).Error("Reopening request failed")
	}
}

// enqueueSuggestions asks for regeneration for both endpoints and everyone a
// derived edge touched. Without a queue the caller regenerates.
func (s *RequestService) enqueueSuggestions(ctx context.Context, result *AcceptResult) {
	if s.queue == nil {
		return
	}
	ids := []string{result.Edge.SubjectID, result.Edge.ObjectID}
	if result.Deduction != nil {
		ids = append(ids, result.Deduction.Affected()...)
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := s.queue.Enqueue(ctx, entities.Job{Kind: entities.JobSuggest, PersonID: id}); err != nil {
			s.log.WithError(err).WithField("person", id).Warn("Failed to enqueue suggestion job")
		}
	}
}

func (s *RequestService) publish(ctx context.Context, event entities.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.WithError(err).WithField("event", event.Type).Warn("Failed to publish event")
	}
}
