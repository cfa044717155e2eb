package entities

import "time"

// Audit actions written by consistency repair.
const (
	AuditEdgeDeleted    = "edge_deleted"
	AuditEdgeRelabeled  = "edge_relabeled"
	AuditMirrorRestored = "mirror_restored"
)

// AuditEntry represents a logged repair action.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	PersonID  string         `json:"person_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
