package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/kinship"
	"github.com/ersonp/kin-core/internal/domain/ports"
)

// IssueKind classifies a consistency problem found by RepairService.
type IssueKind string

const (
	IssueMissingMirror      IssueKind = "missing_mirror"
	IssueGenderMismatch     IssueKind = "gender_mismatch"
	IssueTentativeResolved  IssueKind = "tentative_resolved"
	IssueUnjustifiedSibling IssueKind = "unjustified_sibling"
)

// Issue is one consistency problem on an edge.
type Issue struct {
	Kind IssueKind             `json:"kind"`
	Edge entities.Relationship `json:"edge"`
	Fix  entities.RelationType `json:"fix,omitempty"`
}

// RepairReport lists what Repair found and changed.
type RepairReport struct {
	Issues []Issue `json:"issues"`
	Fixed  int     `json:"fixed"`
}

// RepairService finds and fixes graph inconsistencies around a person.
// Every change it makes is written to the audit log.
type RepairService struct {
	db    ports.RelationalDB
	store *EdgeStore
	log   *logrus.Entry
}

// NewRepairService creates a new RepairService.
func NewRepairService(db ports.RelationalDB, store *EdgeStore, log *logrus.Entry) *RepairService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RepairService{db: db, store: store, log: log.WithField("component", "repair")}
}

// Audit reports the issues on edges touching a person without changing anything.
func (s *RepairService) Audit(ctx context.Context, personID string) ([]Issue, error) {
	person, err := s.store.Person(ctx, personID)
	if err != nil {
		return nil, err
	}

	held, err := s.store.EdgesOf(ctx, personID)
	if err != nil {
		return nil, err
	}
	incoming, err := s.store.EdgesTo(ctx, personID)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, e := range held {
		mirror, err := s.store.Find(ctx, e.ObjectID, e.SubjectID)
		if err != nil {
			return nil, err
		}
		if mirror == nil {
			issues = append(issues, Issue{Kind: IssueMissingMirror, Edge: e, Fix: e.Type})
		}

		role := kinship.RoleOf(e.Type)
		gender := entities.GenderOf(person)
		if gender.Known() {
			want, _ := kinship.CodeFor(role, gender)
			switch {
			case !GenderMatches(e.Type, person):
				issues = append(issues, Issue{Kind: IssueGenderMismatch, Edge: e, Fix: want})
			case e.Tentative:
				issues = append(issues, Issue{Kind: IssueTentativeResolved, Edge: e, Fix: want})
			}
		}

		if role == kinship.RoleSibling && e.Automatic {
			ok, err := SharesParent(ctx, s.store, e.SubjectID, e.ObjectID)
			if err != nil {
				return nil, err
			}
			if !ok {
				issues = append(issues, Issue{Kind: IssueUnjustifiedSibling, Edge: e})
			}
		}
	}

	for _, e := range incoming {
		mirror, err := s.store.Find(ctx, e.ObjectID, e.SubjectID)
		if err != nil {
			return nil, err
		}
		if mirror == nil {
			issues = append(issues, Issue{Kind: IssueMissingMirror, Edge: e, Fix: e.Type})
		}
	}
	return issues, nil
}

// Repair fixes the issues Audit reports. Missing mirrors are restored by
// writing the absent direction, labels are corrected in place and unjustified automatic
// sibling pairs are deleted.
func (s *RepairService) Repair(ctx context.Context, personID string) (*RepairReport, error) {
	issues, err := s.Audit(ctx, personID)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{Issues: issues}
	for _, issue := range issues {
		if err := s.fix(ctx, personID, issue); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"kind":    issue.Kind,
				"subject": issue.Edge.SubjectID,
				"object":  issue.Edge.ObjectID,
			}).Warn("Repair failed")
			continue
		}
		report.Fixed++
		metrics.repairsTotal.WithLabelValues(string(issue.Kind)).Inc()
	}
	return report, nil
}

func (s *RepairService) fix(ctx context.Context, personID string, issue Issue) error {
	e := issue.Edge
	details := map[string]any{
		"edge_id": e.ID,
		"subject": e.SubjectID,
		"object":  e.ObjectID,
		"code":    string(e.Type),
		"issue":   string(issue.Kind),
	}

	switch issue.Kind {
	case IssueMissingMirror:
		mirror, err := s.store.RestoreMirror(ctx, &e)
		if err != nil {
			return fmt.Errorf("restoring mirror: %w", err)
		}
		details["mirror_id"] = mirror.ID
		details["mirror_code"] = string(mirror.Type)
		return s.audit(ctx, entities.AuditMirrorRestored, personID, details)

	case IssueGenderMismatch, IssueTentativeResolved:
		if err := s.db.UpdateEdgeType(ctx, e.ID, issue.Fix, false); err != nil {
			return fmt.Errorf("relabeling edge: %w", err)
		}
		details["new_code"] = string(issue.Fix)
		return s.audit(ctx, entities.AuditEdgeRelabeled, personID, details)

	case IssueUnjustifiedSibling:
		// Audited first so a deletion is never unrecorded.
		if err := s.audit(ctx, entities.AuditEdgeDeleted, personID, details); err != nil {
			return err
		}
		if err := s.db.DeleteEdgePair(ctx, e.SubjectID, e.ObjectID); err != nil {
			return fmt.Errorf("deleting sibling pair: %w", err)
		}
		return nil
	}
	return nil
}

func (s *RepairService) audit(ctx context.Context, action, personID string, details map[string]any) error {
	if err := s.db.LogAction(ctx, action, personID, details); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}
