package entities

// JobKind names a deferred unit of work.
type JobKind string

const (
	// JobDeduce propagates a freshly accepted edge.
	JobDeduce JobKind = "deduce"
	// JobSuggest regenerates suggestions for a person.
	JobSuggest JobKind = "suggest"
)

// Job is a deferred propagation or suggestion regeneration task.
// Jobs must be safe to run more than once.
type Job struct {
	Kind     JobKind `json:"kind"`
	PersonID string  `json:"person_id"`
	EdgeID   string  `json:"edge_id,omitempty"`
	Attempt  int     `json:"attempt"`
}
