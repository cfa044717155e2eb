package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/services"
)

// JobHandler runs deferred jobs taken off the task queue.
// Jobs are idempotent: propagation absorbs duplicates and generation replaces
// the pending set, so a redelivered job is harmless.
type JobHandler struct {
	deduction   *services.DeductionService
	suggestions *services.SuggestionService
	log         *logrus.Entry
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(deduction *services.DeductionService, suggestions *services.SuggestionService, log *logrus.Entry) *JobHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &JobHandler{
		deduction:   deduction,
		suggestions: suggestions,
		log:         log.WithField("component", "jobs"),
	}
}

// Handle runs one job. A returned error asks the queue to retry.
func (h *JobHandler) Handle(ctx context.Context, job entities.Job) error {
	switch job.Kind {
	case entities.JobDeduce:
		return h.deduce(ctx, job)
	case entities.JobSuggest:
		return h.suggest(ctx, job)
	default:
		h.log.WithField("kind", job.Kind).Warn("Dropping job of unknown kind")
		return nil
	}
}

func (h *JobHandler) deduce(ctx context.Context, job entities.Job) error {
	result, err := h.deduction.PropagateByID(ctx, job.EdgeID)
	if errors.Is(err, entities.ErrEdgeNotFound) {
		// Removed by repair since it was enqueued.
		h.log.WithField("edge", job.EdgeID).Info("Seed edge is gone, skipping propagation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("propagating %s: %w", job.EdgeID, err)
	}

	ids := append([]string{job.PersonID}, result.Affected()...)
	if err := h.suggestions.RegenerateFor(ctx, ids...); err != nil {
		return err
	}
	h.log.WithFields(logrus.Fields{
		"edge":    job.EdgeID,
		"written": result.Written,
		"skipped": result.Skipped,
	}).Info("Propagated")
	return nil
}

func (h *JobHandler) suggest(ctx context.Context, job entities.Job) error {
	_, err := h.suggestions.Generate(ctx, job.PersonID)
	if errors.Is(err, entities.ErrPersonNotFound) {
		h.log.WithField("person", job.PersonID).Info("Person is gone, skipping suggestions")
		return nil
	}
	return err
}
