package entities

import "time"

// EventType names a domain event.
type EventType string

const (
	EventRelationshipAccepted EventType = "relationship_accepted"
	EventSuggestionCreated    EventType = "suggestion_created"
)

// Event is published for notification and messaging subscribers.
type Event struct {
	Type       EventType    `json:"type"`
	SubjectID  string       `json:"subject_id"`
	ObjectID   string       `json:"object_id"`
	Code       RelationType `json:"code,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// RelationshipAccepted builds the event emitted after a request is accepted.
func RelationshipAccepted(subjectID, objectID string, code RelationType, at time.Time) Event {
	return Event{
		Type:       EventRelationshipAccepted,
		SubjectID:  subjectID,
		ObjectID:   objectID,
		Code:       code,
		OccurredAt: at,
	}
}

// SuggestionCreated builds the event emitted for a newly persisted suggestion.
func SuggestionCreated(ownerID, candidateID string, at time.Time) Event {
	return Event{
		Type:       EventSuggestionCreated,
		SubjectID:  ownerID,
		ObjectID:   candidateID,
		OccurredAt: at,
	}
}
