package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// SuggestionHandler handles suggestion generation and resolution.
type SuggestionHandler struct {
	persons     *services.PersonService
	suggestions *services.SuggestionService
}

// NewSuggestionHandler creates a new SuggestionHandler.
func NewSuggestionHandler(persons *services.PersonService, suggestions *services.SuggestionService) *SuggestionHandler {
	return &SuggestionHandler{persons: persons, suggestions: suggestions}
}

// SuggestionInfo is a suggestion with its candidate resolved.
type SuggestionInfo struct {
	Suggestion entities.Suggestion `json:"suggestion"`
	Candidate  *entities.Person    `json:"candidate,omitempty"`
}

// HandleGenerate regenerates a person's suggestions and returns them.
func (h *SuggestionHandler) HandleGenerate(ctx context.Context, ownerRef string) ([]SuggestionInfo, error) {
	owner, err := h.persons.Resolve(ctx, ownerRef)
	if err != nil {
		return nil, err
	}
	sugs, err := h.suggestions.Generate(ctx, owner.ID)
	if err != nil {
		return nil, err
	}
	return h.withCandidates(ctx, sugs)
}

// HandleList lists a person's suggestions. An empty status lists pending ones.
func (h *SuggestionHandler) HandleList(ctx context.Context, ownerRef, status string) ([]SuggestionInfo, error) {
	owner, err := h.persons.Resolve(ctx, ownerRef)
	if err != nil {
		return nil, err
	}
	st, err := parseSuggestionStatus(status)
	if err != nil {
		return nil, err
	}
	sugs, err := h.suggestions.List(ctx, owner.ID, st)
	if err != nil {
		return nil, err
	}
	return h.withCandidates(ctx, sugs)
}

// HandleAccept turns a suggestion into a request from actor, its owner.
// relation may be empty when the suggestion already carries a code.
func (h *SuggestionHandler) HandleAccept(ctx context.Context, suggestionID, actorRef, relation string) (*ProposeResult, error) {
	var code entities.RelationType
	if strings.TrimSpace(relation) != "" {
		parsed, err := kinship.Parse(relation)
		if err != nil {
			return nil, err
		}
		code = parsed
	}
	actor, err := h.persons.Resolve(ctx, actorRef)
	if err != nil {
		return nil, err
	}
	req, warnings, err := h.suggestions.Accept(ctx, suggestionID, actor.ID, code)
	if err != nil {
		return nil, err
	}
	return &ProposeResult{Request: req, Warnings: warnings}, nil
}

// HandleDismiss hides a suggestion for good.
func (h *SuggestionHandler) HandleDismiss(ctx context.Context, suggestionID, actorRef string) error {
	actor, err := h.persons.Resolve(ctx, actorRef)
	if err != nil {
		return err
	}
	return h.suggestions.Dismiss(ctx, suggestionID, actor.ID)
}

func (h *SuggestionHandler) withCandidates(ctx context.Context, sugs []entities.Suggestion) ([]SuggestionInfo, error) {
	ids := make([]string, 0, len(sugs))
	for i := range sugs {
		ids = append(ids, sugs[i].CandidateID)
	}
	lookup, err := h.persons.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SuggestionInfo, 0, len(sugs))
	for i := range sugs {
		out = append(out, SuggestionInfo{Suggestion: sugs[i], Candidate: lookup[sugs[i].CandidateID]})
	}
	return out, nil
}

func parseSuggestionStatus(s string) (entities.SuggestionStatus, error) {
	switch st := entities.SuggestionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return entities.SuggestionPending, nil
	case "all":
		return "", nil
	case entities.SuggestionPending, entities.SuggestionAccepted, entities.SuggestionDismissed:
		return st, nil
	default:
		return "", fmt.Errorf("invalid suggestion status: %s (valid: pending, accepted, dismissed, all)", s)
	}
}
