package entities

import "time"

// RequestStatus is the state of a relationship request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestAccepted  RequestStatus = "accepted"
	RequestDeclined  RequestStatus = "declined"
	RequestCancelled RequestStatus = "cancelled"
)

// RelationshipRequest is a consent-gated proposal: the requester claims to be
// Type of the target, and nothing reaches the graph until the target accepts.
type RelationshipRequest struct {
	ID          string        `json:"id"`
	RequesterID string        `json:"requester_id"`
	TargetID    string        `json:"target_id"`
	Type        RelationType  `json:"type"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
}

// IsTerminal reports whether the request has been resolved.
func (r *RelationshipRequest) IsTerminal() bool {
	return r.Status != RequestPending
}
