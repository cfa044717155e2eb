package entities

import "time"

// SuggestionStatus is the state of a suggestion.
type SuggestionStatus string

const (
	SuggestionPending   SuggestionStatus = "pending"
	SuggestionAccepted  SuggestionStatus = "accepted"
	SuggestionDismissed SuggestionStatus = "dismissed"
)

// Suggestion proposes a person the owner likely knows.
// An empty Type means a connection was found but no kinship code could be asserted;
// the owner must pick one when accepting.
type Suggestion struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	CandidateID string           `json:"candidate_id"`
	Type        RelationType     `json:"suggested_type,omitempty"`
	Status      SuggestionStatus `json:"status"`
	Reason      string           `json:"reason"`
	Score       int              `json:"score"`
	CreatedAt   time.Time        `json:"created_at"`
}

// HasType reports whether the suggestion carries a kinship code.
func (s *Suggestion) HasType() bool {
	return s.Type != ""
}
