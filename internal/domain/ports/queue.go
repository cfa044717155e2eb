package ports

import (
	"context"

	"github.com/ersonp/kin-core/internal/domain/entities"
)

// TaskQueue defers propagation and suggestion regeneration.
// Delivery is at-least-once; jobs must be idempotent.
type TaskQueue interface {
	Enqueue(ctx context.Context, job entities.Job) error
}

// EventPublisher delivers domain events to notification and messaging subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event entities.Event) error
}
