package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// Refresher brings suggestions up to date after the graph changed, either by
// enqueueing suggest jobs or by regenerating inline when no queue is configured.
type Refresher struct {
	suggestions *services.SuggestionService
	queue       ports.TaskQueue
	log         *logrus.Entry
}

// NewRefresher creates a Refresher. A nil queue regenerates inline.
func NewRefresher(suggestions *services.SuggestionService, queue ports.TaskQueue, log *logrus.Entry) *Refresher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Refresher{
		suggestions: suggestions,
		queue:       queue,
		log:         log.WithField("component", "refresh"),
	}
}

// Queued reports whether refreshes go through the task queue.
func (r *Refresher) Queued() bool {
	return r != nil && r.queue != nil
}

// Refresh regenerates suggestions for every id. Failures are logged; the
// graph change that triggered the refresh is already committed.
func (r *Refresher) Refresh(ctx context.Context, ids ...string) {
	if r == nil || len(ids) == 0 {
		return
	}
	if r.queue != nil {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := r.queue.Enqueue(ctx, entities.Job{Kind: entities.JobSuggest, PersonID: id}); err != nil {
				r.log.WithError(err).WithField("person", id).Warn("Failed to enqueue suggestion job")
			}
		}
		return
	}
	if r.suggestions == nil {
		return
	}
	if err := r.suggestions.RegenerateFor(ctx, ids...); err != nil {
		r.log.WithError(err).Warn("Suggestion regeneration failed")
	}
}

// AfterAccept refreshes the people an accepted request touched. With a queue
// the request service has already enqueued the jobs.
func (r *Refresher) AfterAccept(ctx context.Context, result *services.AcceptResult) {
	if r.Queued() || result == nil || result.Edge == nil {
		return
	}
	ids := []string{result.Edge.SubjectID, result.Edge.ObjectID}
	if result.Deduction != nil {
		ids = append(ids, result.Deduction.Affected()...)
	}
	r.Refresh(ctx, ids...)
}
